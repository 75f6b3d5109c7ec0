package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Cost bcrypt 计算成本
const Cost = bcrypt.DefaultCost

// Hash 生成密码哈希
func Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare 比较密码和哈希
func Compare(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash 哈希无效或成本与当前设置不同
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != Cost
}
