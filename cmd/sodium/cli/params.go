// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// FlagsFromParams creates a [pflag.FlagSet] bound to the tagged fields
// of params, which must be a pointer to a struct. It panics when
// params cannot be bound.
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers a flag for each field of params tagged
// flag:"name" or flag:"name,n". desc:"..." sets the help text and
// default:"..." the default value. Fields may be string, bool or int;
// embedded structs are bound recursively.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindStruct(value.Elem(), flagSet)
}

func bindStruct(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	structType := structValue.Type()
	for i := range structType.NumField() {
		field := structType.Field(i)
		fieldValue := structValue.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindStruct(fieldValue, flagSet); err != nil {
				return fmt.Errorf("embedded %s: %w", field.Name, err)
			}
			continue
		}

		tag, ok := field.Tag.Lookup("flag")
		if !ok {
			continue
		}
		name, shorthand, _ := strings.Cut(tag, ",")
		description := field.Tag.Get("desc")
		defaultString := field.Tag.Get("default")

		switch target := fieldValue.Addr().Interface().(type) {
		case *string:
			flagSet.StringVarP(target, name, shorthand, defaultString, description)
		case *bool:
			defaultValue := false
			if defaultString != "" {
				parsed, err := strconv.ParseBool(defaultString)
				if err != nil {
					return fmt.Errorf("field %s: default for --%s: %w", field.Name, name, err)
				}
				defaultValue = parsed
			}
			flagSet.BoolVarP(target, name, shorthand, defaultValue, description)
		case *int:
			defaultValue := 0
			if defaultString != "" {
				parsed, err := strconv.Atoi(defaultString)
				if err != nil {
					return fmt.Errorf("field %s: default for --%s: %w", field.Name, name, err)
				}
				defaultValue = parsed
			}
			flagSet.IntVarP(target, name, shorthand, defaultValue, description)
		default:
			return fmt.Errorf("field %s: unsupported type %s for flag --%s", field.Name, field.Type, name)
		}
	}
	return nil
}
