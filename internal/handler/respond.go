// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
)

// Response 统一响应信封
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody 错误信息, 错误码与 pkg/errors 的定义一致
type ErrorBody struct {
	Code    errors.Code            `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// validate 请求DTO校验器, 错误提示按 json tag 报字段名
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// respondJSON 返回成功响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

// respondError 返回错误响应, 按错误码映射HTTP状态
func respondError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error: &ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
			Fields:  appErr.Fields,
		},
	})
}

func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.Wrap(err, errors.CodeInternal, "服务器内部错误")
}

// decodeJSON 解析并校验请求体
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败")
	}
	return validateStruct(dst)
}

// validateStruct 按字段 tag 校验DTO, 失败时聚合为验证错误
func validateStruct(dst interface{}) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if stderrors.As(err, &invalid) {
		return errors.Wrap(err, errors.CodeInternal, "请求校验配置错误")
	}

	ve := &errors.ValidationErrors{}
	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			ve.Add(fe.Field(), validationMessage(fe))
		}
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return errors.Wrap(err, errors.CodeValidationFail, "请求校验失败")
}

// pathID 解析路由中的 {id} 参数
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CodeInvalidInput, "无效的ID格式")
	}
	return id, nil
}

// errDatabaseDisabled 访问需要数据库的接口但部署未配置数据库
func errDatabaseDisabled() *errors.AppError {
	return errors.New(errors.CodeInvalidInput, "数据库未配置, 该接口不可用")
}

// validationMessage 把校验 tag 翻译为提示语
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "uuid":
		return "必须是有效的UUID"
	case "datetime":
		return "日期格式无效, 应为YYYY-MM-DD"
	case "min":
		return "不能小于 " + fe.Param()
	case "max":
		return "不能大于 " + fe.Param()
	case "gt":
		return "必须大于 " + fe.Param()
	case "oneof":
		return "必须是 " + fe.Param() + " 之一"
	default:
		return "不符合 " + fe.Tag() + " 约束"
	}
}
