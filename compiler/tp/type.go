package tp

type (
	Type interface {
		Size() int
	}

	// None is the type of expressions producing no value:
	// stores, sets, branches, loops and blocks used as statements.
	None struct{}

	Int struct {
		Bits   int16
		Signed bool
	}

	Ptr struct {
		X Type
	}
)

func (x None) Size() int {
	return 0
}

func (x Int) Size() int {
	return int(x.Bits) / 8
}

func (x Ptr) Size() int {
	return 8
}

func IsNone(t Type) bool {
	_, ok := t.(None)
	return ok
}
