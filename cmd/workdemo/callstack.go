// Package workdemo burns CPU in a small mutually recursive call graph so the
// resulting pprof profile has cycles worth cutting.
package workdemo

var workAmount = 20000000

// Root runs the workload. Depth bounds the Parse/Eval recursion.
func Root(depth int) int {
	return Parse(0, depth)
}

func Parse(count, depth int) int {
	count = spin(count)
	count = Lex(count)
	if depth > 0 {
		count = Eval(count, depth-1)
	}
	return count
}

func Eval(count, depth int) int {
	count = spin(count)
	// Eval calls back into Parse, closing the cycle.
	return Parse(count, depth)
}

func Lex(count int) int {
	return spin(count)
}

func spin(count int) int {
	for i := 0; i < workAmount; i++ {
		count += i
		if i%2 == 0 {
			count = count / 2
		}
	}
	return count
}
