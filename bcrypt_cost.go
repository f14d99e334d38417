//go:build !race

package signin

func defaultHashCost() int {
	return 14
}
