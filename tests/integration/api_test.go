// Package integration 用生产路由表直接驱动处理器,
// 覆盖路由匹配, 方法守卫, 请求校验与错误信封这些纯接口层行为。
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/handler"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
	"github.com/google/uuid"
)

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   *handler.ErrorBody `json:"error"`
}

// newAPIMux 注册与生产入口相同的路由表, 全部处理器不接数据库
func newAPIMux() *http.ServeMux {
	detector := conflict.NewDetector(conflict.Config{})
	ruleHandler := handler.NewRuleHandler(nil, nil, nil)
	scheduleHandler := handler.NewScheduleHandler(detector, nil, nil, nil)
	suggestHandler := handler.NewSuggestHandler(detector, nil)
	statsHandler := handler.NewStatsHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rules/parse", ruleHandler.Parse)
	mux.HandleFunc("POST /api/v1/rules", ruleHandler.Create)
	mux.HandleFunc("GET /api/v1/rules", ruleHandler.List)
	mux.HandleFunc("GET /api/v1/rules/templates", ruleHandler.Templates)
	mux.HandleFunc("GET /api/v1/rules/{id}", ruleHandler.Get)
	mux.HandleFunc("POST /api/v1/rules/{id}/confirm", ruleHandler.Confirm)
	mux.HandleFunc("POST /api/v1/rules/{id}/version", ruleHandler.NewVersion)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", ruleHandler.Delete)
	mux.HandleFunc("POST /api/v1/schedule/validate", scheduleHandler.Validate)
	mux.HandleFunc("POST /api/v1/schedule/generate", scheduleHandler.Generate)
	mux.HandleFunc("POST /api/v1/assignments/commit", scheduleHandler.Commit)
	mux.HandleFunc("POST /api/v1/schedules/{id}/publish", scheduleHandler.Publish)
	mux.HandleFunc("POST /api/v1/suggest", suggestHandler.Suggest)
	mux.HandleFunc("POST /api/v1/suggest/reassign", suggestHandler.Reassign)
	mux.HandleFunc("POST /api/v1/suggest/swap", suggestHandler.Swap)
	mux.HandleFunc("POST /api/v1/stats/fairness", statsHandler.Fairness)
	mux.HandleFunc("POST /api/v1/stats/coverage", statsHandler.Coverage)
	mux.HandleFunc("POST /api/v1/stats/workload", statsHandler.Workload)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("序列化请求失败: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("解析响应失败: %v, body=%s", err, rec.Body.String())
	}
	return &env
}

// TestTemplatesRouteWinsOverIDPattern 字面段 templates 要优先于 {id} 通配
//
// 若 {id} 匹配胜出, 请求会落到需要数据库的规则详情接口并返回错误。
func TestTemplatesRouteWinsOverIDPattern(t *testing.T) {
	mux := newAPIMux()
	rec := doRequest(t, mux, http.MethodGet, "/api/v1/rules/templates", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, 期望 200, body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, 期望 application/json", ct)
	}

	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatal("期望 success=true")
	}
	var resp struct {
		Templates []struct {
			Name        string   `json:"name"`
			DisplayName string   `json:"display_name"`
			Category    string   `json:"category"`
			Phrases     []string `json:"phrases"`
		} `json:"templates"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("解析模板响应失败: %v", err)
	}
	if len(resp.Templates) != 9 {
		t.Fatalf("模板数 = %d, 期望 9", len(resp.Templates))
	}
	seen := make(map[string]bool)
	for _, tpl := range resp.Templates {
		if tpl.Name == "" || tpl.DisplayName == "" || tpl.Category == "" {
			t.Errorf("模板 %+v 缺少必要字段", tpl)
		}
		if len(tpl.Phrases) == 0 {
			t.Errorf("模板 %s 没有示例短语", tpl.Name)
		}
		if seen[tpl.Name] {
			t.Errorf("模板名 %s 重复", tpl.Name)
		}
		seen[tpl.Name] = true
	}
}

// TestMethodGuards 路径存在但方法不符时返回 405 并带 Allow 头
func TestMethodGuards(t *testing.T) {
	mux := newAPIMux()
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/schedule/validate"},
		{http.MethodDelete, "/api/v1/schedule/generate"},
		{http.MethodPost, "/api/v1/rules/templates"},
		{http.MethodGet, "/api/v1/assignments/commit"},
	}
	for _, tc := range cases {
		rec := doRequest(t, mux, tc.method, tc.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s 状态码 = %d, 期望 405", tc.method, tc.path, rec.Code)
		}
		if rec.Header().Get("Allow") == "" {
			t.Errorf("%s %s 缺少 Allow 响应头", tc.method, tc.path)
		}
	}

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/nonexistent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("未知路径状态码 = %d, 期望 404", rec.Code)
	}
}

// TestValidationFailureFields 缺失必填字段时按 json tag 逐字段报错
func TestValidationFailureFields(t *testing.T) {
	mux := newAPIMux()
	rec := doRequest(t, mux, http.MethodPost, "/api/v1/schedule/validate", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, 期望 400, body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Error("期望 success=false")
	}
	if env.Error == nil || env.Error.Code != errors.CodeValidationFail {
		t.Fatalf("错误体 = %+v", env.Error)
	}
	if msg, ok := env.Error.Fields["org_id"]; !ok {
		t.Errorf("Fields 缺少 org_id, 实际 %v", env.Error.Fields)
	} else if msg != "不能为空" {
		t.Errorf("org_id 提示 = %v, 期望 不能为空", msg)
	}
}

// TestMalformedBody 非法 JSON 请求体归为输入错误
func TestMalformedBody(t *testing.T) {
	mux := newAPIMux()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/validate", strings.NewReader("{坏掉的"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, 期望 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != errors.CodeInvalidInput {
		t.Fatalf("错误体 = %+v", env.Error)
	}
	if !strings.Contains(env.Error.Message, "解析请求失败") {
		t.Errorf("错误信息 = %q", env.Error.Message)
	}
}

// TestParseFailureStatus 解析不出规则的文本经路由返回 422
func TestParseFailureStatus(t *testing.T) {
	mux := newAPIMux()
	rec := doRequest(t, mux, http.MethodPost, "/api/v1/rules/parse", map[string]string{
		"text": "这句话不是任何排班规则",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("状态码 = %d, 期望 422, body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != errors.CodeParseFailure {
		t.Fatalf("错误体 = %+v", env.Error)
	}
}

// TestStorageRoutesDegradeWithoutDatabase 存储类接口在无库部署下统一报数据库未配置
func TestStorageRoutesDegradeWithoutDatabase(t *testing.T) {
	mux := newAPIMux()
	id := uuid.New().String()
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/rules"},
		{http.MethodGet, "/api/v1/rules"},
		{http.MethodGet, "/api/v1/rules/" + id},
		{http.MethodPost, "/api/v1/rules/" + id + "/confirm"},
		{http.MethodPost, "/api/v1/rules/" + id + "/version"},
		{http.MethodDelete, "/api/v1/rules/" + id},
		{http.MethodPost, "/api/v1/schedules/" + id + "/publish"},
	}
	for _, tc := range cases {
		rec := doRequest(t, mux, tc.method, tc.path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s 状态码 = %d, 期望 400", tc.method, tc.path, rec.Code)
			continue
		}
		env := decodeEnvelope(t, rec)
		if env.Error == nil || env.Error.Code != errors.CodeInvalidInput {
			t.Errorf("%s %s 错误体 = %+v", tc.method, tc.path, env.Error)
			continue
		}
		if !strings.Contains(env.Error.Message, "数据库未配置") {
			t.Errorf("%s %s 错误信息 = %q", tc.method, tc.path, env.Error.Message)
		}
	}
}

// TestReassignUnknownTarget 改派目标不在花名册时经路由返回 404
func TestReassignUnknownTarget(t *testing.T) {
	mux := newAPIMux()
	orgID := uuid.New()
	worker := &model.Employee{
		BaseModel: model.NewBaseModel(),
		OrgID:     orgID,
		Name:      "小林",
		Status:    "active",
	}
	day, err := timeutil.ParseDate("2024-02-05")
	if err != nil {
		t.Fatal(err)
	}
	assignment := &model.Assignment{
		BaseModel:  model.NewBaseModel(),
		OrgID:      orgID,
		EmployeeID: worker.ID,
		Date:       "2024-02-05",
		StartTime:  day.Add(9 * time.Hour),
		EndTime:    day.Add(17 * time.Hour),
		Status:     model.AssignmentProposed,
		Version:    1,
	}

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/suggest/reassign", handler.ReassignRequest{
		SnapshotInput: handler.SnapshotInput{
			OrgID:       orgID.String(),
			Employees:   []*model.Employee{worker},
			Assignments: []*model.Assignment{assignment},
		},
		Assignment: assignment,
		TargetID:   uuid.New().String(),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, 期望 404, body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != errors.CodeNotFound {
		t.Fatalf("错误体 = %+v", env.Error)
	}
}

// TestSwapUnknownTarget 指定的换班目标不在花名册时经路由返回 404
func TestSwapUnknownTarget(t *testing.T) {
	mux := newAPIMux()
	orgID := uuid.New()
	worker := &model.Employee{
		BaseModel: model.NewBaseModel(),
		OrgID:     orgID,
		Name:      "小周",
		Status:    "active",
	}
	day, err := timeutil.ParseDate("2024-02-06")
	if err != nil {
		t.Fatal(err)
	}
	assignment := &model.Assignment{
		BaseModel:  model.NewBaseModel(),
		OrgID:      orgID,
		EmployeeID: worker.ID,
		Date:       "2024-02-06",
		StartTime:  day.Add(9 * time.Hour),
		EndTime:    day.Add(17 * time.Hour),
		Status:     model.AssignmentProposed,
		Version:    1,
	}

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/suggest/swap", handler.SwapRequest{
		SnapshotInput: handler.SnapshotInput{
			OrgID:       orgID.String(),
			Employees:   []*model.Employee{worker},
			Assignments: []*model.Assignment{assignment},
		},
		Assignment: assignment,
		TargetID:   uuid.New().String(),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, 期望 404, body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != errors.CodeNotFound {
		t.Fatalf("错误体 = %+v", env.Error)
	}
}
