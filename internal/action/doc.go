// Package action defines the calling convention shared by every action: a
// recipe entry point that resolves piped parameters, a direct entry point
// without piping, and a type classifier the recipe executor uses for flash
// loan bracketing.
package action
