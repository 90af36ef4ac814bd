package carrierstatus

import (
	"strings"
	"testing"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/stretchr/testify/require"
)

func variants(s string) []string {
	return []string{s, strings.ToLower(s), "  " + s + "\t", " " + strings.ToLower(s) + "\n"}
}

func TestToPhase_Sets(t *testing.T) {
	for s := range ShippedStatuses {
		for _, v := range variants(s) {
			require.Equal(t, models.PhaseShipped, ToPhase(v), v)
			require.True(t, IsShippedStatus(v), v)
		}
	}
	for s := range DeliveredStatuses {
		for _, v := range variants(s) {
			require.Equal(t, models.PhaseDelivered, ToPhase(v), v)
			require.True(t, IsDeliveredStatus(v), v)
			require.False(t, IsShippedStatus(v), v)
		}
	}
	for s := range ExceptionStatuses {
		for _, v := range variants(s) {
			require.Equal(t, models.PhaseException, ToPhase(v), v)
			require.False(t, IsDeliveredStatus(v), v)
		}
	}
}

func TestToPhase_Scenarios(t *testing.T) {
	require.Equal(t, models.PhaseShipped, ToPhase("IN_TRANSIT"))
	require.Equal(t, ToPhase("IN_TRANSIT"), ToPhase("in_transit"))
	require.Equal(t, models.PhaseException, ToPhase("RETURNED"))
	require.Equal(t, models.PhaseOther, ToPhase("random-status"))
	require.True(t, IsShippedStatus("PRE_TRANSIT"))
	require.Equal(t, models.PhaseOther, ToPhase(""))
	require.Equal(t, models.PhaseOther, ToPhase("   "))
}

func TestDeliveredPrefixAsymmetry(t *testing.T) {
	for _, s := range []string{"DELIVERED_TO_NEIGHBOR", "DELIVERED_TO_ACCESS_POINT", "delivered (locker)"} {
		require.Equal(t, models.PhaseOther, ToPhase(s), s)
		require.True(t, IsDeliveredStatus(s), s)
	}
	// подстрока не в начале не считается
	require.False(t, IsDeliveredStatus("NOT_DELIVERED"))
	require.False(t, IsDeliveredStatus("UNDELIVERED"))
	require.False(t, IsDeliveredStatus(""))
}

func TestToPhaseRaw_Nil(t *testing.T) {
	require.Equal(t, models.PhaseOther, ToPhaseRaw(nil))
	var p *string
	require.Equal(t, models.PhaseOther, ToPhaseRaw(p))
	require.Equal(t, models.PhaseOther, ToPhaseRaw(42))
	s := "transit"
	require.Equal(t, models.PhaseShipped, ToPhaseRaw(&s))
	require.Equal(t, models.PhaseDelivered, ToPhaseRaw("Delivered"))
	require.False(t, IsDeliveredStatus(rawString(nil)))
}

func TestToPhase_Stateless(t *testing.T) {
	seq := []string{"DELIVERED", "TRANSIT", "FAILURE", "x", "DELIVERED"}
	first := make([]models.Phase, 0, len(seq))
	for _, s := range seq {
		first = append(first, ToPhase(s))
	}
	for i := len(seq) - 1; i >= 0; i-- {
		require.Equal(t, first[i], ToPhase(seq[i]))
	}
}

func TestNotificationPhase(t *testing.T) {
	p, ok := NotificationPhase("DELIVERED_TO_NEIGHBOR")
	require.True(t, ok)
	require.Equal(t, models.PhaseDelivered, p)

	p, ok = NotificationPhase("pre_transit")
	require.True(t, ok)
	require.Equal(t, models.PhaseShipped, p)

	p, ok = NotificationPhase("RETURNED")
	require.False(t, ok)
	require.Equal(t, models.PhaseException, p)

	p, ok = NotificationPhase("")
	require.False(t, ok)
	require.Equal(t, models.PhaseOther, p)
}

func TestFlagKey(t *testing.T) {
	require.Equal(t, "outbound.first-scan", FlagKey(models.DirectionOutbound, models.PhaseShipped))
	require.Equal(t, "outbound.delivered", FlagKey(models.DirectionOutbound, models.PhaseDelivered))
	require.Equal(t, "return.first-scan", FlagKey(models.DirectionReturn, models.PhaseShipped))
	require.Equal(t, "return.delivered", FlagKey(models.DirectionReturn, models.PhaseDelivered))
	require.Empty(t, FlagKey(models.DirectionOutbound, models.PhaseException))
	require.Empty(t, FlagKey("sideways", models.PhaseShipped))
}
