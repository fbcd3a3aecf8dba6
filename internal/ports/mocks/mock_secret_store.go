package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockSecretStore is a testify mock of ports.SecretStore.
type MockSecretStore struct {
	mock.Mock
}

type MockSecretStore_Expecter struct {
	mock *mock.Mock
}

func (_m *MockSecretStore) EXPECT() *MockSecretStore_Expecter {
	return &MockSecretStore_Expecter{mock: &_m.Mock}
}

func (_m *MockSecretStore) Get(ctx context.Context, key string) (string, error) {
	ret := _m.Called(ctx, key)
	return ret.String(0), ret.Error(1)
}

func (_e *MockSecretStore_Expecter) Get(ctx interface{}, key interface{}) *mock.Call {
	return _e.mock.On("Get", ctx, key)
}

func (_m *MockSecretStore) Put(ctx context.Context, key string, value string) error {
	ret := _m.Called(ctx, key, value)
	return ret.Error(0)
}

func (_e *MockSecretStore_Expecter) Put(ctx interface{}, key interface{}, value interface{}) *mock.Call {
	return _e.mock.On("Put", ctx, key, value)
}

func (_m *MockSecretStore) Delete(ctx context.Context, key string) error {
	ret := _m.Called(ctx, key)
	return ret.Error(0)
}

func (_e *MockSecretStore_Expecter) Delete(ctx interface{}, key interface{}) *mock.Call {
	return _e.mock.On("Delete", ctx, key)
}

func NewMockSecretStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSecretStore {
	m := &MockSecretStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
