// Package mocks provides gomock mocks of the storage contracts in internal/core.
//
// Most service tests use the in-memory doubles in internal/mocks/auth; these
// mocks cover the failure paths (store outages, call ordering) that are awkward
// to stage with a working fake.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockSessionRepository(ctrl)
//	repo.EXPECT().DeleteByTokens(gomock.Any(), gomock.Any()).Return(int64(0), errBoom)
package mocks

// Generate mock for SessionRepository:
// Insert, FindByToken, ListByAccount, DeleteByToken, DeleteByTokens, UpdateExpiry, DeleteExpired
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_repository_mock.go github.com/uninbox/authd/internal/core SessionRepository

// Generate mock for CacheRepository (the Redis-backed ephemeral KV).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/uninbox/authd/internal/core CacheRepository

// Generate mock for OrgRepository:
// FindByShortcode, FindByID, ListMembers, CreateWithAdmin, AddMember, UpdateMemberStatus, UpdateMemberRole, UpdateShortcode
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=org_repository_mock.go github.com/uninbox/authd/internal/core OrgRepository
