// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package api

import (
	"encoding/json"
	"fmt"
)

type ChatMessageRole int

const (
	RoleUser ChatMessageRole = iota
	RoleAssistant
)

var roleName = map[ChatMessageRole]string{
	RoleUser:      "user",
	RoleAssistant: "assistant",
}

var roleValue = map[string]ChatMessageRole{
	"user":      RoleUser,
	"assistant": RoleAssistant,
}

func (r ChatMessageRole) String() string {
	return roleName[r]
}

func ParseRole(s string) (ChatMessageRole, error) {
	r, ok := roleValue[s]
	if !ok {
		return RoleUser, fmt.Errorf("unknown chat role '%s'", s)
	}
	return r, nil
}

func (r ChatMessageRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *ChatMessageRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ChatMessage is one entry of a session transcript.
type ChatMessage struct {
	Role    ChatMessageRole `json:"role"`
	Content string          `json:"content"`
}

func UserMessage(content string) *ChatMessage {
	return &ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) *ChatMessage {
	return &ChatMessage{Role: RoleAssistant, Content: content}
}
