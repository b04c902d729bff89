package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

func chatChannelParams() chat.CreateChannelParams {
	return chat.CreateChannelParams{GuildID: testGuild, ParentID: "cat-a", Name: "wager-test"}
}

func newAllocator(t *testing.T, categories *fakeCategoryRepo, guildCeiling int) (*AllocationService, *fakeChat) {
	t.Helper()
	chatClient := newFakeChat()
	return NewAllocationService(categories, chatClient, guildCeiling, zap.NewNop()), chatClient
}

func TestAllocatePrefersLowestPosition(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-b", testGuild, domain.TicketKind1v1, "", 1, 0, 50)
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 0, 50)
	alloc, _ := newAllocator(t, categories, 0)

	slot, err := alloc.Allocate(context.Background(), testGuild, domain.TicketKind1v1, "", "")
	require.NoError(t, err)
	assert.Equal(t, "cat-a", slot.CategoryID)
	assert.Equal(t, 1, slot.ChannelCount)
}

func TestAllocateSkipsFullSlots(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 50, 50)
	categories.add("cat-b", testGuild, domain.TicketKind1v1, "", 1, 49, 50)
	alloc, _ := newAllocator(t, categories, 0)

	slot, err := alloc.Allocate(context.Background(), testGuild, domain.TicketKind1v1, "", "")
	require.NoError(t, err)
	assert.Equal(t, "cat-b", slot.CategoryID)
}

func TestAllocateNeverReturnsFullSlot(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 48, 50)
	alloc, _ := newAllocator(t, categories, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = alloc.Allocate(ctx, testGuild, domain.TicketKind1v1, "", "")
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, err := range results {
		if err == nil {
			granted++
		} else {
			assert.True(t, apperrors.IsCode(err, "CAPACITY_EXCEEDED"))
		}
	}
	assert.Equal(t, 2, granted, "only the remaining capacity is granted")
	assert.Equal(t, 50, categories.count("cat-a"))
}

func TestAllocateAllFull(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 50, 50)
	alloc, _ := newAllocator(t, categories, 0)

	_, err := alloc.Allocate(context.Background(), testGuild, domain.TicketKind1v1, "", "")
	assert.True(t, apperrors.IsCode(err, "CAPACITY_EXCEEDED"))
}

func TestAllocateNoCategoriesForScope(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind2v2, "", 0, 0, 50)
	alloc, _ := newAllocator(t, categories, 0)

	_, err := alloc.Allocate(context.Background(), testGuild, domain.TicketKind1v1, "", "")
	assert.True(t, apperrors.IsCode(err, "CAPACITY_EXCEEDED"), "kind scoping excludes the wrong pool")
}

func TestAllocateHonorsHint(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 0, 50)
	categories.add("cat-b", testGuild, domain.TicketKind1v1, "", 1, 0, 50)
	alloc, _ := newAllocator(t, categories, 0)

	slot, err := alloc.Allocate(context.Background(), testGuild, domain.TicketKind1v1, "", "cat-b")
	require.NoError(t, err)
	assert.Equal(t, "cat-b", slot.CategoryID)

	// unknown hint falls back to position order
	slot, err = alloc.Allocate(context.Background(), testGuild, domain.TicketKind1v1, "", "cat-zzz")
	require.NoError(t, err)
	assert.Equal(t, "cat-a", slot.CategoryID)
}

func TestAllocateGuildCeiling(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 0, 50)
	alloc, chatClient := newAllocator(t, categories, 500)
	chatClient.channelTotal = 500

	_, err := alloc.Allocate(context.Background(), testGuild, domain.TicketKind1v1, "", "")
	assert.True(t, apperrors.IsCode(err, "CAPACITY_EXCEEDED"))
	assert.Equal(t, 0, categories.count("cat-a"), "no slot is consumed at the ceiling")
}

func TestReleaseFloorsAtZero(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 0, 50)
	alloc, _ := newAllocator(t, categories, 0)

	alloc.Release(context.Background(), "cat-a")
	assert.Equal(t, 0, categories.count("cat-a"))
}

func TestReconcileRepairsDriftedCounts(t *testing.T) {
	categories := &fakeCategoryRepo{}
	categories.add("cat-a", testGuild, domain.TicketKind1v1, "", 0, 7, 50)
	alloc, chatClient := newAllocator(t, categories, 0)

	// platform says three channels actually exist
	for i := 0; i < 3; i++ {
		_, err := chatClient.CreateChannel(context.Background(), chatChannelParams())
		require.NoError(t, err)
	}

	require.NoError(t, alloc.Reconcile(context.Background(), testGuild))
	assert.Equal(t, 3, categories.count("cat-a"))
}
