// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"testing"

	"github.com/pkg/errors"
)

func TestErrorsString(t *testing.T) {

	err := Errors{
		NewError(ParseErr, nil, "blah"),
		NewError(ParseErr, &Location{Row: 100, Col: 2}, "bleh"),
		NewError(ParseErr, &Location{File: "foo.dl", Row: 100, Col: 2}, "blarg"),
	}

	expected := `3 errors occurred:
parse_error: blah
100:2: parse_error: bleh
foo.dl:100: parse_error: blarg`
	result := err.Error()

	if result != expected {
		t.Errorf("Expected %v but got: %v", expected, result)
	}

	err = Errors{NewError(ParseErr, nil, "blah")}
	expected = `1 error occurred: parse_error: blah`
	result = err.Error()

	if result != expected {
		t.Errorf("Expected %v but got: %v", expected, result)
	}

	expected = `no error(s)`
	result = Errors{}.Error()
	if result != expected {
		t.Errorf("Expected %v but got: %v", expected, result)
	}
}

func TestErrorsSort(t *testing.T) {
	errs := Errors{
		NewError(ParseErr, &Location{Row: 3, Col: 1}, "c"),
		NewError(ParseErr, &Location{Row: 1, Col: 5}, "b"),
		NewError(ParseErr, nil, "a"),
	}
	errs.Sort()
	for i, exp := range []string{"a", "b", "c"} {
		if errs[i].Message != exp {
			t.Fatalf("Expected %v at %d but got %v", exp, i, errs[i].Message)
		}
	}
}

func TestIsError(t *testing.T) {
	err := NewError(UnsafeRuleErr, nil, "unsafe")

	if !IsError(UnsafeRuleErr, err) {
		t.Fatal("expected unsafe rule error")
	}
	if !IsError(UnsafeRuleErr, errors.Wrap(Errors{err}, "compile")) {
		t.Fatal("expected wrapped unsafe rule error")
	}
	if IsError(StratificationErr, err) {
		t.Fatal("unexpected stratification error")
	}
}
