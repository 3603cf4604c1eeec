// Package newick reads rooted trees in Newick format and converts them into
// the nested JSON structure the tree viewer renders.
//
// Decoding follows the conventions of the tools that produce the trees
// (IQ-TREE): labels after a closing parenthesis name internal nodes, and a
// purely numeric internal label is a support value rather than a name.
// Encoding applies the display policy for unnamed and parser-generated
// labels; see Encode.
package newick
