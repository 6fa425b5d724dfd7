package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_PushListDelete(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	ivan := e.addAccount(t, "ivan", 0)
	petar := e.addAccount(t, "petar", 0)

	first, err := e.notifications.Push(ctx, ivan, "Hi", "first", models.NotificationSuccess)
	require.NoError(t, err)
	second, err := e.notifications.Push(ctx, ivan, "Hi", "second", models.NotificationDanger)
	require.NoError(t, err)
	other, err := e.notifications.Push(ctx, petar, "Hi", "other", models.NotificationSuccess)
	require.NoError(t, err)

	list, err := e.notifications.List(ctx, "ivan")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Message)
	assert.Equal(t, "first", list[1].Message)

	removed, err := e.notifications.Delete(ctx, "ivan", []int64{first.ID, other.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list, err = e.notifications.List(ctx, "ivan")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	list, err = e.notifications.List(ctx, "petar")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotificationService_PushFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	ivan := e.addAccount(t, "ivan", 0)
	e.notifier.err = errors.New("offline")

	n, err := e.notifications.Push(ctx, ivan, "Hi", "msg", models.NotificationSuccess)
	require.NoError(t, err)
	assert.NotZero(t, n.ID)
	assert.Equal(t, 1, e.notifier.count())
}

func TestNotificationService_UnknownUser(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.notifications.List(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	_, err = e.notifications.Delete(context.Background(), "ghost", []int64{1})
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}
