package skill

import (
	"fmt"
	"os"
)

func readBody(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading skill body from %s: %w", path, err)
	}
	return string(data), nil
}
