// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/staranto/tabfetch/internal/output"
)

type FlagValidatorType func(any) error

func FlagValidators(value any, validators ...FlagValidatorType) error {
	for _, v := range validators {
		if err := v(value); err != nil {
			return err
		}
	}
	return nil
}

// JammedFlagValidator verifies that the arg following a flag does not begin
// with '--'.  urfave/cli allows this and I don't see how to turn it off.
func JammedFlagValidator(value any) error {
	if strings.HasPrefix(value.(string), "--") {
		return errors.New("must not begin with '--'")
	}
	return nil
}

func OutputValidator(value any) error {
	if !slices.Contains(output.Formats, value.(string)) {
		return fmt.Errorf("must be one of %v", output.Formats)
	}
	return nil
}

// ColumnsValidator rejects column names that rows do not carry.
func ColumnsValidator(value any) error {
	for _, c := range output.ParseColumns(value.(string)) {
		if !slices.Contains(output.AllColumns, c) {
			return fmt.Errorf("unknown column %q, must be one of %v", c, output.AllColumns)
		}
	}
	return nil
}

// MinIntValidator rejects ints below floor.
func MinIntValidator(floor int) FlagValidatorType {
	return func(value any) error {
		if value.(int) < floor {
			return fmt.Errorf("must be at least %d", floor)
		}
		return nil
	}
}

func NonNegativeDurationValidator(value any) error {
	if value.(time.Duration) < 0 {
		return errors.New("must not be negative")
	}
	return nil
}
