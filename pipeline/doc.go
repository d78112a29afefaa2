// Package pipeline is the Pipeline Composer. It is grounded on the
// closure-chaining shape every behavior in this module already
// implements (seq.Behavior's next argument) — composing them is
// nothing more than folding that chain at configuration time instead
// of paying a reflection or dynamic-dispatch cost per dispatch call.
package pipeline
