package service

import (
	"os"
	"testing"

	"videotube-server/pkg/hash"

	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	hash.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}
