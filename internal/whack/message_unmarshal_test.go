// Copyright (C) 2019 Arroyo Networks, Inc
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package whack

import (
	"testing"
)

func TestUnmarshalBoolTrue(t *testing.T) {
	boolMessage := struct {
		Field bool `whack:"field"`
	}{
		Field: false,
	}

	m := NewMessage()
	_ = m.Set("field", "yes")

	if err := UnmarshalMessage(m, &boolMessage); err != nil {
		t.Fatalf("UnmarshalMessage: %v", err)
	}
	if boolMessage.Field != true {
		t.Errorf("Field = %v, want true", boolMessage.Field)
	}
}

func TestUnmarshalBoolFalse(t *testing.T) {
	boolMessage := struct {
		Field bool `whack:"field"`
	}{
		Field: true,
	}

	m := NewMessage()
	_ = m.Set("field", "no")

	if err := UnmarshalMessage(m, &boolMessage); err != nil {
		t.Fatalf("UnmarshalMessage: %v", err)
	}
	if boolMessage.Field != false {
		t.Errorf("Field = %v, want false", boolMessage.Field)
	}
}

func TestUnmarshalBoolInvalid(t *testing.T) {
	boolMessage := struct {
		Field bool `whack:"field"`
	}{
		Field: true,
	}

	m := NewMessage()
	_ = m.Set("field", "invalid-not-a-bool")

	if err := UnmarshalMessage(m, &boolMessage); err == nil {
		t.Error("UnmarshalMessage: want error for an invalid boolean value, got nil")
	}
}

func TestUnmarshalMissingFieldLeavesZeroValue(t *testing.T) {
	intMessage := struct {
		Field int `whack:"field"`
	}{
		Field: 7,
	}

	m := NewMessage()

	if err := UnmarshalMessage(m, &intMessage); err != nil {
		t.Fatalf("UnmarshalMessage: %v", err)
	}
	if intMessage.Field != 7 {
		t.Errorf("Field = %v, want 7 (unmarshal must leave an absent field untouched)", intMessage.Field)
	}
}

func TestUnmarshalTargetMustBeStructPointer(t *testing.T) {
	m := NewMessage()
	_ = m.Set("field", "yes")

	var notAPointer struct {
		Field bool `whack:"field"`
	}
	if err := UnmarshalMessage(m, notAPointer); err == nil {
		t.Error("UnmarshalMessage: want error for a non-pointer target, got nil")
	}
}
