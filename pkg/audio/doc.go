// Package audio resolves the audio layout of a token and hands the selected
// stems to an external [Encoder].
//
// Stem selection uses the same state machinery as image layers: every audio
// layer is a state node whose selector picks one stem. Mixing, mastering and
// transcoding are the encoder's job; this package only prepares its input,
// including the one piece of the mastering preset that needs evaluating: the
// makeup gain of the compression filter, computed with the arithmetic-only
// [EvalArithmetic].
package audio
