package audio

import (
	"strconv"
	"strings"

	"github.com/matzehuels/strata/pkg/errors"
)

// CompressionFilter fills the {threshold} and {maxVolume} placeholders of a
// compression equation such as
//
//	acompressor=threshold={threshold}:ratio=2:makeup=(-{maxVolume}+2)
//
// and replaces the makeup expression with its value. maxVolume is inserted
// parenthesised so a negative reading stays a valid operand.
func CompressionFilter(equation string, threshold, maxVolume float64) (string, error) {
	f := strings.Replace(equation, "{threshold}", formatFloat(threshold), 1)
	f = strings.Replace(f, "{maxVolume}", "("+formatFloat(maxVolume)+")", 1)

	before, after, ok := strings.Cut(f, "makeup=")
	if !ok {
		return f, nil
	}
	expr, rest, hasRest := strings.Cut(after, ":")
	v, err := EvalArithmetic(expr)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidExpression, err, "makeup component")
	}
	f = before + "makeup=" + formatFloat(v)
	if hasRest {
		f += ":" + rest
	}
	return f, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
