// Package mocks provides mock implementations for testing the orchestrator.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the core ports. The mocks are generated using go:generate directives.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	provider := mocks.NewMockProvider(ctrl)
//	provider.EXPECT().Name().Return("sim").AnyTimes()
package mocks

// Generate mock for the Provider interface from internal/core.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=provider_mock.go github.com/Silverviles/nexar-hal/internal/core Provider

// Generate mock for the EventPublisher interface from internal/core.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=event_publisher_mock.go github.com/Silverviles/nexar-hal/internal/core EventPublisher
