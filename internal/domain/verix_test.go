package domain_test

import (
	"fmt"
	"testing"

	"go-screening-backend/internal/domain"

	"github.com/stretchr/testify/assert"
)

var verixStatuses = []domain.VerixStatus{
	domain.VerixPending,
	domain.VerixQuestionsSent,
	domain.VerixAwaitingResponse,
	domain.VerixResponded,
	domain.VerixVerified,
	domain.VerixCompleted,
	domain.VerixFailed,
	domain.VerixExpired,
}

type verixMove struct {
	from domain.VerixStatus
	to   domain.VerixStatus
}

var legalVerixMoves = map[verixMove]bool{
	{domain.VerixPending, domain.VerixQuestionsSent}:          true,
	{domain.VerixPending, domain.VerixFailed}:                 true,
	{domain.VerixQuestionsSent, domain.VerixAwaitingResponse}: true,
	{domain.VerixQuestionsSent, domain.VerixFailed}:           true,
	{domain.VerixQuestionsSent, domain.VerixExpired}:          true,
	{domain.VerixAwaitingResponse, domain.VerixResponded}:     true,
	{domain.VerixAwaitingResponse, domain.VerixFailed}:        true,
	{domain.VerixAwaitingResponse, domain.VerixExpired}:       true,
	{domain.VerixResponded, domain.VerixVerified}:             true,
	{domain.VerixResponded, domain.VerixFailed}:               true,
	{domain.VerixVerified, domain.VerixCompleted}:             true,
	{domain.VerixVerified, domain.VerixFailed}:                true,
	{domain.VerixFailed, domain.VerixQuestionsSent}:           true,
	{domain.VerixExpired, domain.VerixQuestionsSent}:          true,
}

func TestVerixTransitionTable(t *testing.T) {
	for _, from := range verixStatuses {
		for _, to := range verixStatuses {
			m := verixMove{from, to}
			t.Run(fmt.Sprintf("%s_%s", from, to), func(t *testing.T) {
				assert.Equal(t, legalVerixMoves[m], from.CanTransitionTo(to))
			})
		}
	}
}

func TestVerixCompletedIsTerminal(t *testing.T) {
	for _, to := range verixStatuses {
		assert.False(t, domain.VerixCompleted.CanTransitionTo(to), to)
	}
	assert.False(t, domain.VerixCompleted.Open())
	assert.False(t, domain.VerixCompleted.Retryable())
}

func TestVerixRetryOnlyReopens(t *testing.T) {
	for _, s := range verixStatuses {
		assert.Equal(t, s == domain.VerixFailed || s == domain.VerixExpired, s.Retryable(), s)
		assert.Equal(t, s == domain.VerixQuestionsSent || s == domain.VerixAwaitingResponse, s.Open(), s)
		if s.Retryable() {
			for _, to := range verixStatuses {
				assert.Equal(t, to == domain.VerixQuestionsSent, s.CanTransitionTo(to), "%s -> %s", s, to)
			}
		}
	}
}

func TestVerixStatusValidity(t *testing.T) {
	for _, s := range verixStatuses {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, domain.VerixStatus("archived").IsValid())
}
