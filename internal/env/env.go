package env

import (
	"os"

	"github.com/joho/godotenv"
)

// Load reads the given dotenv files in order. Variables already present in the
// process environment are never overridden, and missing files are skipped.
func Load(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}
