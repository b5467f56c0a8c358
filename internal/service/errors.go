package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrPermission           = errors.New("permission denied")
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	ErrUnauthenticated      = errors.New("unauthenticated")
)

// 表单错误文案
const (
	MsgRequired      = "Обязательное поле."
	MsgInvalidChoice = "Выберите корректный вариант. Вашего варианта нет среди допустимых значений."
	MsgSelfFollow    = "Нельзя подписаться на самого себя."
	MsgUsernameTaken = "Пользователь с таким именем уже существует."
	MsgSlugTaken     = "Группа с таким Номер уже существует."
)

// ValidationError 按字段记录表单错误，errors.Is(err, ErrValidation) 为 true
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// orNil 没有字段错误时返回 nil
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
