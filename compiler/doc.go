/*

Process of optimization

Module Text ->
	parse ->
Intermediate Representation (ir) ->
	cfg + effects ->
Optimized Representation (licm) ->
	format ->
Module Text

The ir is a tree of structured control flow: blocks, loops and ifs
with typed expressions. Passes analyze it through the cfg package,
which derives basic blocks and successor edges from the tree, and
the effects package, which summarizes what a subtree may do.

*/
package compiler
