package keys

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keygatelabs/keygate/rbac"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(newTestStore(t), rbac.New())
}

func seedKey(t *testing.T, s *Service, id string) Key {
	t.Helper()
	k, err := s.Create(context.Background(), rbac.Admin, Key{
		ID:          id,
		Department:  "physics",
		Category:    "lab",
		MaxDuration: 2 * time.Hour,
	})
	require.NoError(t, err)
	return k
}

func TestServiceAssignHappyPath(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	k, err := s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "lab", time.Hour)
	require.NoError(t, err)
	require.Equal(t, Assigned, k.Status)
	require.Equal(t, "u1", k.Assignment.HolderID)
}

func TestServiceAssignRequiresCapability(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	_, err := s.Assign(ctx, rbac.Faculty, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "lab", time.Hour)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestServiceAssignChecksHolderRole(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	_, err := s.Create(ctx, rbac.Admin, Key{
		ID:           "K002",
		AllowedRoles: []rbac.Role{rbac.Security},
		MaxDuration:  time.Hour,
	})
	require.NoError(t, err)

	_, err = s.Assign(ctx, rbac.Security, "K002", Holder{ID: "u1", Role: rbac.Faculty}, "x", time.Hour)
	require.ErrorIs(t, err, ErrHolderNotAllowed)
}

func TestServiceAssignNonAvailableLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	_, err := s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "lab", time.Hour)
	require.NoError(t, err)

	before, err := s.Get(ctx, rbac.Security, "K001")
	require.NoError(t, err)

	_, err = s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u2", Role: rbac.Faculty}, "lab", time.Hour)
	require.ErrorIs(t, err, ErrConflict)

	after, err := s.Get(ctx, rbac.Security, "K001")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestServiceReturnThenReassign(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	_, err := s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "lab", time.Hour)
	require.NoError(t, err)

	returned, err := s.Return(ctx, rbac.Security, "K001")
	require.NoError(t, err)
	require.Equal(t, Available, returned.Status)
	require.Nil(t, returned.Assignment)

	again, err := s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u2", Role: rbac.Faculty}, "demo", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "u2", again.Assignment.HolderID)
}

func TestServiceReturnUnassignedConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	_, err := s.Return(ctx, rbac.Security, "K001")
	require.ErrorIs(t, err, ErrConflict)
}

func TestServiceMaintenanceFromAssigned(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	_, err := s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "lab", time.Hour)
	require.NoError(t, err)

	k, err := s.MarkMaintenance(ctx, rbac.SecurityIncharge, "K001", "broken bow")
	require.NoError(t, err)
	require.Equal(t, Maintenance, k.Status)
	require.Nil(t, k.Assignment)

	back, err := s.MarkAvailable(ctx, rbac.SecurityIncharge, "K001")
	require.NoError(t, err)
	require.Equal(t, Available, back.Status)
}

func TestServiceMarkAvailableRefusesAssigned(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	_, err := s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "lab", time.Hour)
	require.NoError(t, err)

	_, err = s.MarkAvailable(ctx, rbac.Admin, "K001")
	require.ErrorIs(t, err, ErrConflict)
}

func TestServiceFlagAndRecover(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	k, err := s.Flag(ctx, rbac.SecurityIncharge, "K001", Lost)
	require.NoError(t, err)
	require.Equal(t, Lost, k.Status)

	_, err = s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "x", time.Hour)
	require.ErrorIs(t, err, ErrConflict)

	recovered, err := s.MarkAvailable(ctx, rbac.SecurityIncharge, "K001")
	require.NoError(t, err)
	require.Equal(t, Available, recovered.Status)
}

func TestServiceConcurrentAssignSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")

	const contenders = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		wins       int
		conflicts  int
		unexpected []error
	)

	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		holder := Holder{ID: "u" + string(rune('a'+i)), Role: rbac.Faculty}
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Assign(ctx, rbac.Security, "K001", holder, "race", time.Hour)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}

	close(start)
	wg.Wait()

	require.Empty(t, unexpected, "losers must fail with ErrConflict only")
	require.Equal(t, 1, wins, "exactly one assign must win")
	require.Equal(t, contenders-1, conflicts)

	final, err := s.Get(ctx, rbac.Security, "K001")
	require.NoError(t, err)
	require.Equal(t, Assigned, final.Status)
}

func TestServiceOverdue(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedKey(t, s, "K001")
	seedKey(t, s, "K002")

	_, err := s.Assign(ctx, rbac.Security, "K001", Holder{ID: "u1", Role: rbac.Faculty}, "lab", time.Hour)
	require.NoError(t, err)

	// Nothing overdue while inside the window.
	overdue, err := s.Overdue(ctx, rbac.SecurityIncharge)
	require.NoError(t, err)
	require.Empty(t, overdue)

	// Shift the service clock past the expected return.
	s.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	overdue, err = s.Overdue(ctx, rbac.SecurityIncharge)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, "K001", overdue[0].ID)

	_, err = s.Overdue(ctx, rbac.Faculty)
	require.ErrorIs(t, err, ErrForbidden)
}
