package mocks

import (
	"context"

	ports "github.com/bnema/cloudwhisper/internal/ports"
	mock "github.com/stretchr/testify/mock"
)

// MockAnalyzer is a testify mock of ports.Analyzer.
type MockAnalyzer struct {
	mock.Mock
}

type MockAnalyzer_Expecter struct {
	mock *mock.Mock
}

func (_m *MockAnalyzer) EXPECT() *MockAnalyzer_Expecter {
	return &MockAnalyzer_Expecter{mock: &_m.Mock}
}

func (_m *MockAnalyzer) Name() string {
	ret := _m.Called()
	return ret.String(0)
}

func (_e *MockAnalyzer_Expecter) Name() *mock.Call {
	return _e.mock.On("Name")
}

func (_m *MockAnalyzer) Analyze(ctx context.Context, req ports.AnalysisRequest) (string, error) {
	ret := _m.Called(ctx, req)
	return ret.String(0), ret.Error(1)
}

func (_e *MockAnalyzer_Expecter) Analyze(ctx interface{}, req interface{}) *mock.Call {
	return _e.mock.On("Analyze", ctx, req)
}

func NewMockAnalyzer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAnalyzer {
	m := &MockAnalyzer{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
