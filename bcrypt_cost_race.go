//go:build race

package signin

import "golang.org/x/crypto/bcrypt"

func defaultHashCost() int {
	return bcrypt.DefaultCost
}
