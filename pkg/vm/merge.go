package vm

import (
	"github.com/brane-project/brane/pkg/ir"
)

// ApplyMerge reconciles the return values of a Parallel's branches
// according to the declared MergeStrategy type rules:
//
//   - Sum/Product/Max/Min require a common numeric type across branches.
//   - All requires identical non-void types and produces an array.
//   - First/FirstBlocking pick the first value and Last the last value,
//     with no type law: the branches' types are not compared.
//   - None discards values and always yields Void.
func ApplyMerge(strategy ir.MergeStrategy, values []ir.Value) (ir.Value, error) {
	if strategy == ir.MergeNone {
		return ir.VoidValue(), nil
	}
	if len(values) == 0 {
		return ir.Value{}, ErrBranchType
	}

	switch strategy {
	case ir.MergeFirst, ir.MergeFirstBlocking:
		return values[0], nil
	case ir.MergeLast:
		return values[len(values)-1], nil
	case ir.MergeAll:
		want := values[0].DataType()
		if want == ir.TypeVoid {
			return ir.Value{}, ErrBranchType
		}
		for _, v := range values {
			if v.DataType() != want {
				return ir.Value{}, ErrBranchType
			}
		}
		return ir.ArrayValue(values), nil
	case ir.MergeSum, ir.MergeProduct, ir.MergeMax, ir.MergeMin:
		want := values[0].DataType()
		if !ir.IsNumeric(want) {
			return ir.Value{}, ErrBranchType
		}
		for _, v := range values {
			if v.DataType() != want {
				return ir.Value{}, ErrBranchType
			}
		}
		return reduceNumeric(strategy, want, values)
	default:
		return ir.Value{}, ErrBranchType
	}
}

func reduceNumeric(strategy ir.MergeStrategy, typ ir.DataType, values []ir.Value) (ir.Value, error) {
	if typ == ir.TypeInteger {
		acc := values[0].Int()
		for _, v := range values[1:] {
			switch strategy {
			case ir.MergeSum:
				acc += v.Int()
			case ir.MergeProduct:
				acc *= v.Int()
			case ir.MergeMax:
				if v.Int() > acc {
					acc = v.Int()
				}
			case ir.MergeMin:
				if v.Int() < acc {
					acc = v.Int()
				}
			}
		}
		return ir.IntValue(acc), nil
	}
	acc := values[0].Real()
	for _, v := range values[1:] {
		switch strategy {
		case ir.MergeSum:
			acc += v.Real()
		case ir.MergeProduct:
			acc *= v.Real()
		case ir.MergeMax:
			if v.Real() > acc {
				acc = v.Real()
			}
		case ir.MergeMin:
			if v.Real() < acc {
				acc = v.Real()
			}
		}
	}
	return ir.RealValue(acc), nil
}
