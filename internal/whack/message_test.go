//
// Copyright (C) 2019 Nick Rosbrook
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
//

package whack

import (
	"reflect"
	"testing"
)

func buildGoldMessage() *Message {
	sub := NewMessage()
	_ = sub.Set("key2", "value2")
	_ = sub.Set("list1", []string{"item1", "item2"})

	section := NewMessage()
	_ = section.Set("sub-section", sub)

	m := NewMessage()
	_ = m.Set("key1", "value1")
	_ = m.Set("section1", section)
	return m
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	gold := buildGoldMessage()

	b, err := gold.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	m := NewMessage()
	if err := m.decode(b); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(m.data["key1"], "value1") {
		t.Errorf("key1 = %v, want value1", m.data["key1"])
	}

	section, ok := m.data["section1"].(*Message)
	if !ok {
		t.Fatalf("section1 decoded as %T, want *Message", m.data["section1"])
	}

	sub, ok := section.data["sub-section"].(*Message)
	if !ok {
		t.Fatalf("sub-section decoded as %T, want *Message", section.data["sub-section"])
	}

	if sub.data["key2"] != "value2" {
		t.Errorf("key2 = %v, want value2", sub.data["key2"])
	}
	if !reflect.DeepEqual(sub.data["list1"], []string{"item1", "item2"}) {
		t.Errorf("list1 = %v, want [item1 item2]", sub.data["list1"])
	}
}

func TestMessageCheckSuccess(t *testing.T) {
	ok := NewMessage()
	_ = ok.Set("success", "yes")
	if err := ok.CheckSuccess(); err != nil {
		t.Errorf("CheckSuccess() on a successful message = %v, want nil", err)
	}

	failed := NewMessage()
	_ = failed.Set("success", "no")
	_ = failed.Set("errmsg", "boom")
	if err := failed.CheckSuccess(); err == nil {
		t.Error("CheckSuccess() on a failed message = nil, want error")
	}
}

func TestMessageGetMissingKeyReturnsNil(t *testing.T) {
	m := NewMessage()
	if v := m.Get("absent"); v != nil {
		t.Errorf("Get(absent) = %v, want nil", v)
	}
}
