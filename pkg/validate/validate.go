// Package validate 封装 go-playground/validator，统一边界参数校验
// 校验失败统一转换为 errorx.CodeValidation 错误，消息经过翻译
package validate

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"karrot_server/pkg/errorx"
)

var (
	v     *validator.Validate
	trans ut.Translator
	once  sync.Once
)

// setup 初始化校验器和英文翻译器
// 使用 json tag 作为字段名，报错信息与对外字段名一致
func setup() {
	once.Do(func() {
		v = validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		enT := en.New()
		uni := ut.New(enT, enT)
		trans, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)
	})
}

// Struct 校验结构体，失败返回 CodeValidation 错误
func Struct(s any) error {
	setup()
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return errorx.Validation("%s", joinMessages(removeTopStruct(validationErrs.Translate(trans))))
	}
	return errorx.Wrap(err, errorx.CodeValidation, "参数校验失败")
}

// Var 校验单个值，field 用于错误消息
func Var(field string, value any, tag string) error {
	setup()
	if err := v.Var(value, tag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			msgs := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				msgs = append(msgs, field+fe.Translate(trans))
			}
			return errorx.Validation("%s", strings.Join(msgs, "; "))
		}
		return errorx.Wrapf(err, errorx.CodeValidation, "%s 校验失败", field)
	}
	return nil
}

// removeTopStruct 去除提示信息中的结构体名称
func removeTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for field, msg := range fields {
		res[field[strings.Index(field, ".")+1:]] = msg
	}
	return res
}

func joinMessages(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fields[k])
	}
	return strings.Join(msgs, "; ")
}
