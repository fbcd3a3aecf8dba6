package mocks

import (
	"context"

	domain "github.com/bnema/cloudwhisper/internal/domain"
	mock "github.com/stretchr/testify/mock"
)

// MockAccountRepository is a testify mock of ports.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

type MockAccountRepository_Expecter struct {
	mock *mock.Mock
}

func (_m *MockAccountRepository) EXPECT() *MockAccountRepository_Expecter {
	return &MockAccountRepository_Expecter{mock: &_m.Mock}
}

func (_m *MockAccountRepository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	ret := _m.Called(ctx, id)
	return ret.Get(0).(domain.Account), ret.Error(1)
}

func (_e *MockAccountRepository_Expecter) GetByID(ctx interface{}, id interface{}) *mock.Call {
	return _e.mock.On("GetByID", ctx, id)
}

func (_m *MockAccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	ret := _m.Called(ctx)

	var accounts []domain.Account
	if v := ret.Get(0); v != nil {
		accounts = v.([]domain.Account)
	}

	return accounts, ret.Error(1)
}

func (_e *MockAccountRepository_Expecter) List(ctx interface{}) *mock.Call {
	return _e.mock.On("List", ctx)
}

func (_m *MockAccountRepository) Save(ctx context.Context, account domain.Account) error {
	ret := _m.Called(ctx, account)
	return ret.Error(0)
}

func (_e *MockAccountRepository_Expecter) Save(ctx interface{}, account interface{}) *mock.Call {
	return _e.mock.On("Save", ctx, account)
}

func (_m *MockAccountRepository) Delete(ctx context.Context, id domain.AccountID) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

func (_e *MockAccountRepository_Expecter) Delete(ctx interface{}, id interface{}) *mock.Call {
	return _e.mock.On("Delete", ctx, id)
}

func NewMockAccountRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
