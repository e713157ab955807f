package ambsheet

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
)

// RandomGenerator interface provides random number generation for testing.
// *rand.Rand from math/rand/v2 satisfies it.
type RandomGenerator interface {
	Float64() float64
	NormFloat64() float64
}

// NewSeededRandom returns a deterministic generator for the given seed
func NewSeededRandom(seed uint64) RandomGenerator {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// sampleNormal draws count samples from N(mean, stdev)
func sampleNormal(rng RandomGenerator, mean, stdev float64, count int) []float64 {
	samples := make([]float64, count)
	for i := range samples {
		samples[i] = mean + stdev*rng.NormFloat64()
	}
	return samples
}

// builtinFunc receives the already-threaded argument values of one world.
// domain errors are returned as *SpreadsheetError values, not Go errors.
type builtinFunc func(args []Primitive) Primitive

type builtin struct {
	minArgs int
	maxArgs int // -1 for variadic
	fn      builtinFunc
}

// BuiltInFunctions contains all spreadsheet built-in functions
type BuiltInFunctions struct {
	table map[string]builtin
}

// NewDefaultBuiltInFunctions creates the standard function table
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{
		table: map[string]builtin{
			"SUM":         {0, -1, SUM},
			"AVERAGE":     {0, -1, AVERAGE},
			"AVERAGEA":    {0, -1, AVERAGEA},
			"COUNT":       {0, -1, COUNT},
			"COUNTA":      {0, -1, COUNTA},
			"MAX":         {0, -1, MAX},
			"MIN":         {0, -1, MIN},
			"MEDIAN":      {0, -1, MEDIAN},
			"MODE":        {0, -1, MODE},
			"AND":         {1, -1, AND},
			"OR":          {1, -1, OR},
			"NOT":         {1, 1, NOT},
			"CONCATENATE": {0, -1, CONCATENATE},
			"LEN":         {1, 1, LEN},
			"UPPER":       {1, 1, UPPER},
			"LOWER":       {1, 1, LOWER},
			"TRIM":        {1, 1, TRIM},
			"ABS":         {1, 1, ABS},
			"ROUND":       {1, 2, ROUND},
			"FLOOR":       {1, 1, FLOOR},
			"CEILING":     {1, 1, CEILING},
			"SQRT":        {1, 1, SQRT},
			"POWER":       {2, 2, POWER},
			"MOD":         {2, 2, MOD},
			"PI":          {0, 0, PI},
		},
	}
}

// Has reports whether name is a known function
func (bf *BuiltInFunctions) Has(name string) bool {
	_, ok := bf.table[strings.ToUpper(name)]
	return ok
}

// Call invokes a built-in function by name. an unknown name or a wrong
// argument count is returned as error and aborts the calling cell; anything
// else, including domain errors, comes back as the result value.
func (bf *BuiltInFunctions) Call(name string, args ...Primitive) (Primitive, error) {
	upper := strings.ToUpper(name)
	b, ok := bf.table[upper]
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
	if len(args) < b.minArgs || (b.maxArgs >= 0 && len(args) > b.maxArgs) {
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s: %s, got %d", upper, arityString(b), len(args)))
	}
	return b.fn(args), nil
}

func arityString(b builtin) string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("expects at least %d arguments", b.minArgs)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("expects exactly %d arguments", b.minArgs)
	default:
		return fmt.Sprintf("expects %d to %d arguments", b.minArgs, b.maxArgs)
	}
}

// checkForError returns the error if value is a *SpreadsheetError, nil otherwise
func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

// firstError returns the first error among direct arguments
func firstError(args []Primitive) *SpreadsheetError {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return err
		}
	}
	return nil
}

// flatten yields every scalar of the arguments, ranges row-major. fromRange
// is true for values taken out of a range, which may be nil for empty cells.
func flatten(args []Primitive) iter.Seq2[Primitive, bool] {
	return func(yield func(Primitive, bool) bool) {
		for _, arg := range args {
			rows, ok := arg.([][]Primitive)
			if !ok {
				if !yield(arg, false) {
					return
				}
				continue
			}
			for _, row := range rows {
				for _, value := range row {
					if !yield(value, true) {
						return
					}
				}
			}
		}
	}
}

// numbers collects the numeric values of the arguments. direct arguments
// are coerced, range values only count when they are numbers.
func numbers(args []Primitive) ([]float64, *SpreadsheetError) {
	values := []float64{}
	for value, fromRange := range flatten(args) {
		if err := checkForError(value); err != nil {
			return nil, err
		}
		if fromRange {
			if num, ok := value.(float64); ok && !math.IsNaN(num) {
				values = append(values, num)
			}
			continue
		}
		if num, ok := toNumber(value); ok && !math.IsNaN(num) {
			values = append(values, num)
		}
	}
	return values, nil
}

func SUM(args []Primitive) Primitive {
	values, err := numbers(args)
	if err != nil {
		return err
	}
	sum := 0.0
	for _, num := range values {
		sum += num
	}
	if math.IsInf(sum, 0) {
		return finite("SUM", sum)
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return rounded
}

func AVERAGE(args []Primitive) Primitive {
	values, err := numbers(args)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	sum := 0.0
	for _, num := range values {
		sum += num
	}
	return sum / float64(len(values))
}

func AVERAGEA(args []Primitive) Primitive {
	sum := 0.0
	count := 0
	for value := range flatten(args) {
		// empty cells are ignored
		if value == nil {
			continue
		}
		if err := checkForError(value); err != nil {
			return err
		}
		// every non-empty value counts but only numbers and booleans add
		switch v := value.(type) {
		case float64:
			sum += v
		case bool:
			if v {
				sum += 1
			}
		}
		count++
	}

	if count == 0 {
		return NewSpreadsheetError(ErrorCodeDiv0, "AVERAGEA has no values")
	}
	return sum / float64(count)
}

func COUNT(args []Primitive) Primitive {
	count := 0
	for value, fromRange := range flatten(args) {
		// direct errors propagate, errors inside ranges are skipped
		if err := checkForError(value); err != nil && !fromRange {
			return err
		}
		// booleans and numeric-looking strings are not counted
		if _, ok := value.(float64); ok {
			count++
		}
	}
	return float64(count)
}

func COUNTA(args []Primitive) Primitive {
	count := 0
	for value, fromRange := range flatten(args) {
		if err := checkForError(value); err != nil && !fromRange {
			return err
		}
		if value != nil {
			count++
		}
	}
	return float64(count)
}

func MAX(args []Primitive) Primitive {
	values, err := numbers(args)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return NewSpreadsheetError(ErrorCodeNum, "MAX has no numeric values")
	}
	return slices.Max(values)
}

func MIN(args []Primitive) Primitive {
	values, err := numbers(args)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return NewSpreadsheetError(ErrorCodeNum, "MIN has no numeric values")
	}
	return slices.Min(values)
}

func MEDIAN(args []Primitive) Primitive {
	values, err := numbers(args)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}

	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		// even count: average of two middle values
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

func MODE(args []Primitive) Primitive {
	values, err := numbers(args)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return NewSpreadsheetError(ErrorCodeNum, "MODE has no numeric values")
	}

	frequency := make(map[float64]int)
	maxFreq := 0
	for _, num := range values {
		frequency[num]++
		maxFreq = max(maxFreq, frequency[num])
	}
	if maxFreq == 1 {
		return NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")
	}

	// smallest of the most frequent values, for ties
	var modes []float64
	for value, freq := range frequency {
		if freq == maxFreq {
			modes = append(modes, value)
		}
	}
	return slices.Min(modes)
}

func AND(args []Primitive) Primitive {
	return logical("AND", args, false)
}

func OR(args []Primitive) Primitive {
	return logical("OR", args, true)
}

// logical folds the truth of every argument, ranges included. the result is
// stopAt once any value has that truth. empty range cells are skipped.
func logical(name string, args []Primitive, stopAt bool) Primitive {
	seen, hit := false, false
	for value, fromRange := range flatten(args) {
		if err := checkForError(value); err != nil {
			return err
		}
		if fromRange && value == nil {
			continue
		}
		seen = true
		hit = hit || isTruthy(value) == stopAt
	}
	if !seen {
		return NewSpreadsheetError(ErrorCodeValue, name+" has no values")
	}
	return hit == stopAt
}

func NOT(args []Primitive) Primitive {
	if err := checkForError(args[0]); err != nil {
		return err
	}
	return !isTruthy(args[0])
}

func CONCATENATE(args []Primitive) Primitive {
	var result strings.Builder
	for value := range flatten(args) {
		if err := checkForError(value); err != nil {
			return err
		}
		result.WriteString(toString(value))
	}
	return result.String()
}

// stringFunc lifts a string -> Primitive function over one argument
func stringFunc(args []Primitive, fn func(string) Primitive) Primitive {
	if err := checkForError(args[0]); err != nil {
		return err
	}
	if _, ok := args[0].([][]Primitive); ok {
		return NewSpreadsheetError(ErrorCodeValue, "expected a single value, got a range")
	}
	return fn(toString(args[0]))
}

func LEN(args []Primitive) Primitive {
	return stringFunc(args, func(s string) Primitive { return float64(len([]rune(s))) })
}

func UPPER(args []Primitive) Primitive {
	return stringFunc(args, func(s string) Primitive { return strings.ToUpper(s) })
}

func LOWER(args []Primitive) Primitive {
	return stringFunc(args, func(s string) Primitive { return strings.ToLower(s) })
}

func TRIM(args []Primitive) Primitive {
	return stringFunc(args, func(s string) Primitive { return strings.TrimSpace(s) })
}

// numberArgs coerces every argument to a number for the math functions
func numberArgs(name string, args []Primitive) ([]float64, *SpreadsheetError) {
	if err := firstError(args); err != nil {
		return nil, err
	}
	nums := make([]float64, len(args))
	for i, arg := range args {
		num, ok := toNumber(arg)
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires numeric arguments", name))
		}
		nums[i] = num
	}
	return nums, nil
}

func ABS(args []Primitive) Primitive {
	nums, err := numberArgs("ABS", args)
	if err != nil {
		return err
	}
	return math.Abs(nums[0])
}

func ROUND(args []Primitive) Primitive {
	nums, err := numberArgs("ROUND", args)
	if err != nil {
		return err
	}
	places := 0.0
	if len(nums) == 2 {
		places = nums[1]
	}
	multiplier := math.Pow(10, places)
	return finite("ROUND", math.Round(nums[0]*multiplier)/multiplier)
}

func FLOOR(args []Primitive) Primitive {
	nums, err := numberArgs("FLOOR", args)
	if err != nil {
		return err
	}
	return math.Floor(nums[0])
}

func CEILING(args []Primitive) Primitive {
	nums, err := numberArgs("CEILING", args)
	if err != nil {
		return err
	}
	return math.Ceil(nums[0])
}

func SQRT(args []Primitive) Primitive {
	nums, err := numberArgs("SQRT", args)
	if err != nil {
		return err
	}
	if nums[0] < 0 {
		return NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(nums[0])
}

func POWER(args []Primitive) Primitive {
	nums, err := numberArgs("POWER", args)
	if err != nil {
		return err
	}
	return finite("POWER", math.Pow(nums[0], nums[1]))
}

func MOD(args []Primitive) Primitive {
	nums, err := numberArgs("MOD", args)
	if err != nil {
		return err
	}
	if nums[1] == 0 {
		return NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return math.Mod(nums[0], nums[1])
}

func PI(args []Primitive) Primitive {
	return math.Pi
}

// finite turns a NaN or infinite result into #NUM!
func finite(name string, num float64) Primitive {
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("%s result is not a finite number", name))
	}
	return num
}

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		return parseNumber(strings.TrimSpace(v))
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toString converts value to string
func toString(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case *SpreadsheetError:
		return v.Short()
	default:
		return fmt.Sprint(value)
	}
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

// FormatValue renders a raw value the way a cell displays it
func FormatValue(value Primitive) string {
	if rows, ok := value.([][]Primitive); ok {
		parts := make([]string, len(rows))
		for i, row := range rows {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = toString(v)
			}
			parts[i] = strings.Join(cells, ",")
		}
		return "[" + strings.Join(parts, ";") + "]"
	}
	return toString(value)
}
