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
	"reflect"
	"testing"
)

// marshalRoundTrip marshals in, then unmarshals the result back into a fresh
// zero value of the same type, returning it for the caller to inspect.
func marshalRoundTrip(t *testing.T, in interface{}, out interface{}) {
	t.Helper()

	m, err := MarshalMessage(in)
	if err != nil {
		t.Fatalf("MarshalMessage: %v", err)
	}
	if err := UnmarshalMessage(m, out); err != nil {
		t.Fatalf("UnmarshalMessage: %v", err)
	}
}

func TestMarshalBoolRoundTrip(t *testing.T) {
	type boolMessage struct {
		Field bool `whack:"field"`
	}

	for _, want := range []bool{true, false} {
		in := boolMessage{Field: want}
		var out boolMessage
		marshalRoundTrip(t, in, &out)
		if out.Field != want {
			t.Errorf("Field = %v, want %v", out.Field, want)
		}
	}
}

func TestMarshalIntRoundTrip(t *testing.T) {
	type intMessage struct {
		Field int `whack:"field"`
	}

	for _, want := range []int{23, -23, 0} {
		in := intMessage{Field: want}
		var out intMessage
		marshalRoundTrip(t, in, &out)
		if out.Field != want {
			t.Errorf("Field = %v, want %v", out.Field, want)
		}
	}
}

func TestMarshalInt8RoundTrip(t *testing.T) {
	type int8Message struct {
		Field int8 `whack:"field"`
	}

	in := int8Message{Field: 23}
	var out int8Message
	marshalRoundTrip(t, in, &out)
	if out.Field != 23 {
		t.Errorf("Field = %v, want 23", out.Field)
	}
}

func TestMarshalUintRoundTrip(t *testing.T) {
	type uintMessage struct {
		Field uint `whack:"field"`
	}

	in := uintMessage{Field: 23}
	var out uintMessage
	marshalRoundTrip(t, in, &out)
	if out.Field != 23 {
		t.Errorf("Field = %v, want 23", out.Field)
	}
}

func TestMarshalUint8RoundTrip(t *testing.T) {
	type uint8Message struct {
		Field uint8 `whack:"field"`
	}

	in := uint8Message{Field: 23}
	var out uint8Message
	marshalRoundTrip(t, in, &out)
	if out.Field != 23 {
		t.Errorf("Field = %v, want 23", out.Field)
	}
}

func TestMarshalEnumTypeRoundTrip(t *testing.T) {
	type testType string
	const testValue testType = "test-value"

	type enumMessage struct {
		Field testType `whack:"field"`
	}

	in := enumMessage{Field: testValue}
	var out enumMessage
	marshalRoundTrip(t, in, &out)
	if out.Field != testValue {
		t.Errorf("Field = %v, want %v", out.Field, testValue)
	}
}

func TestMarshalSliceRoundTrip(t *testing.T) {
	type listMessage struct {
		Field []string `whack:"field"`
	}

	in := listMessage{Field: []string{"item1", "item2"}}
	var out listMessage
	marshalRoundTrip(t, in, &out)
	if !reflect.DeepEqual(out.Field, in.Field) {
		t.Errorf("Field = %v, want %v", out.Field, in.Field)
	}
}

func TestMarshalNestedStructRoundTrip(t *testing.T) {
	type inner struct {
		Name string `whack:"name"`
	}
	type outer struct {
		Section inner `whack:"section"`
	}

	in := outer{Section: inner{Name: "office"}}
	var out outer
	marshalRoundTrip(t, in, &out)
	if out.Section.Name != in.Section.Name {
		t.Errorf("Section.Name = %q, want %q", out.Section.Name, in.Section.Name)
	}
}

func TestMarshalOmitemptySkipsZeroValue(t *testing.T) {
	type optionalMessage struct {
		Field string `whack:"field,omitempty"`
	}

	m, err := MarshalMessage(optionalMessage{})
	if err != nil {
		t.Fatalf("MarshalMessage: %v", err)
	}
	if v := m.Get("field"); v != nil {
		t.Errorf("Get(field) = %v, want nil for an omitted zero value", v)
	}
}

func TestMarshalUnsupportedTypeErrors(t *testing.T) {
	type badMessage struct {
		Field complex64 `whack:"field"`
	}

	if _, err := MarshalMessage(badMessage{Field: 1i}); err == nil {
		t.Error("MarshalMessage: want error for an unsupported field kind, got nil")
	}
}
