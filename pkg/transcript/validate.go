package transcript

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ValidationError lists every problem found in a payload
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %v", strings.Join(e.Issues, "; "))
}

type kind int

const (
	kindString kind = iota
	kindNumber
	kindArray
	kindObject
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindArray:
		return "array"
	default:
		return "object"
	}
}

// checker collects issues while walking a payload
type checker struct {
	issues []string
}

func (c *checker) addf(format string, a ...interface{}) {
	c.issues = append(c.issues, fmt.Sprintf(format, a...))
}

// is reports whether value has the wanted JSON type
func is(value gjson.Result, want kind) bool {
	switch want {
	case kindString:
		return value.Type == gjson.String
	case kindNumber:
		return value.Type == gjson.Number
	case kindArray:
		return value.IsArray()
	default:
		return value.IsObject()
	}
}

// typeName names the JSON type of value for error messages
func typeName(value gjson.Result) string {
	switch {
	case value.IsArray():
		return "array"
	case value.IsObject():
		return "object"
	}
	switch value.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	default:
		return "null"
	}
}

// member returns the last member of obj named exactly key
func member(obj gjson.Result, key string) gjson.Result {
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			found = v
		}
		return true
	})
	return found
}

// field gets key from parent and checks it is present and of the wanted type
func (c *checker) field(parent gjson.Result, path, key string, want kind) (gjson.Result, bool) {

	if path != "" {
		path = path + "." + key
	} else {
		path = key
	}

	value := member(parent, key)
	if !value.Exists() {
		c.addf("%v: required", path)
		return value, false
	}
	if !is(value, want) {
		c.addf("%v: expected %v, got %v", path, want, typeName(value))
		return value, false
	}
	return value, true
}

func (c *checker) str(parent gjson.Result, path, key string) string {
	v, _ := c.field(parent, path, key, kindString)
	return v.Str
}

func (c *checker) num(parent gjson.Result, path, key string) float64 {
	v, _ := c.field(parent, path, key, kindNumber)
	return v.Num
}

func (c *checker) message(m gjson.Result, path string) Message {

	msg := Message{
		UserType:   c.str(m, path, "user_type"),
		AuthorName: c.str(m, path, "author_name"),
		Text:       c.str(m, path, "text"),
		Timestamp:  c.num(m, path, "timestamp"),
	}

	if ut := member(m, "user_type"); ut.Type == gjson.String {
		switch ut.Str {
		case Agent, Supervisor, Visitor:
		default:
			c.addf("%v.user_type: invalid value %q, expected one of %v, %v, %v",
				path, ut.Str, Agent, Supervisor, Visitor)
		}
	}
	return msg
}

func (c *checker) chat(root gjson.Result) ChatData {

	chat, ok := c.field(root, "", "chat", kindObject)
	if !ok {
		return ChatData{}
	}

	cd := ChatData{
		ID:               c.str(chat, "chat", "id"),
		StartedTimestamp: c.num(chat, "chat", "started_timestamp"),
		EndedTimestamp:   c.num(chat, "chat", "ended_timestamp"),
	}

	messages, ok := c.field(chat, "chat", "messages", kindArray)
	if !ok {
		return cd
	}

	cd.Messages = []Message{}
	for i, m := range messages.Array() {
		path := fmt.Sprintf("chat.messages.%d", i)
		if !m.IsObject() {
			c.addf("%v: expected object, got %v", path, typeName(m))
			continue
		}
		cd.Messages = append(cd.Messages, c.message(m, path))
	}
	return cd
}

func (c *checker) visitor(root gjson.Result) VisitorData {

	visitor, ok := c.field(root, "", "visitor", kindObject)
	if !ok {
		return VisitorData{}
	}

	vd := VisitorData{
		ID:    c.str(visitor, "visitor", "id"),
		Name:  c.str(visitor, "visitor", "name"),
		Email: c.str(visitor, "visitor", "email"),
	}

	// custom variables are optional
	if !member(visitor, "custom_variables").Exists() {
		return vd
	}
	vars, ok := c.field(visitor, "visitor", "custom_variables", kindArray)
	if !ok {
		return vd
	}
	for i, v := range vars.Array() {
		path := fmt.Sprintf("visitor.custom_variables.%d", i)
		if !v.IsObject() {
			c.addf("%v: expected object, got %v", path, typeName(v))
			continue
		}
		cv := map[string]string{}
		v.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.String {
				c.addf("%v.%v: expected string, got %v", path, key.Str, typeName(value))
				return true
			}
			cv[key.Str] = value.Str
			return true
		})
		vd.CustomVariables = append(vd.CustomVariables, cv)
	}
	return vd
}

// Parse validates a webhook body and builds an Input from the checked values
func Parse(body []byte) (*Input, error) {

	if !gjson.ValidBytes(body) {
		return nil, &ValidationError{Issues: []string{"body is not valid JSON"}}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("expected object, got %v", typeName(root))}}
	}

	c := &checker{}
	in := &Input{
		Chat:    c.chat(root),
		Visitor: c.visitor(root),
	}
	if len(c.issues) > 0 {
		return nil, &ValidationError{Issues: c.issues}
	}
	return in, nil
}
