package idfactory

import "math/big"

// nextPrime returns the smallest prime >= n.
// ProbablyPrime(0) is exact for values below 2^64, which covers every capacity we use.
func nextPrime(n int) int {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	candidate := new(big.Int)
	for ; ; n += 2 {
		if candidate.SetInt64(int64(n)).ProbablyPrime(0) {
			return n
		}
	}
}
