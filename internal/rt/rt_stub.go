//go:build !linux

package rt

import "fmt"

func lockAll() error { return fmt.Errorf("unsupported OS (need linux)") }

func setFIFO(priority int) error { return fmt.Errorf("unsupported OS (need linux)") }
