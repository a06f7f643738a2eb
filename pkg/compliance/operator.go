package compliance

// Operator is a canonical comparison operator.
type Operator string

// Canonical operators.
const (
	OpLT Operator = "<"
	OpGT Operator = ">"
	OpLE Operator = "<="
	OpGE Operator = ">="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

var operatorTokens = map[string]Operator{
	"<": OpLT, "lt": OpLT,
	">": OpGT, "gt": OpGT,
	"<=": OpLE, "le": OpLE,
	">=": OpGE, "ge": OpGE,
	"==": OpEQ, "eq": OpEQ,
	"!=": OpNE, "ne": OpNE,
}

// ParseOperator maps a token or its mnemonic alias to the canonical operator.
// Tokens are matched exactly.
func ParseOperator(token string) (Operator, bool) {
	op, ok := operatorTokens[token]
	return op, ok
}

// Apply compares actual against threshold.
func (op Operator) Apply(actual, threshold float64) bool {
	switch op {
	case OpLT:
		return actual < threshold
	case OpGT:
		return actual > threshold
	case OpLE:
		return actual <= threshold
	case OpGE:
		return actual >= threshold
	case OpEQ:
		return actual == threshold
	case OpNE:
		return actual != threshold
	default:
		return false
	}
}

// Compare evaluates actual <operator> threshold. An unknown operator is
// always false.
func Compare(actual float64, operator string, threshold float64) bool {
	op, ok := ParseOperator(operator)
	if !ok {
		return false
	}
	return op.Apply(actual, threshold)
}
