package geometry

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tasaciones/server/internal/models"
)

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Locate(ctx context.Context, address string) (float64, float64, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

func TestDistanceKm(t *testing.T) {
	obelisco := orb.Point{-58.3816, -34.6037}
	congreso := orb.Point{-58.3923, -34.6098}

	d := DistanceKm(obelisco, congreso)
	assert.InDelta(t, 1.19, d, 0.05)
	assert.Equal(t, 0.0, DistanceKm(obelisco, obelisco))
}

func TestDistances(t *testing.T) {
	locator := new(MockLocator)
	locator.On("Locate", mock.Anything, "Target 1").Return(-34.6037, -58.3816, nil)
	locator.On("Locate", mock.Anything, "Near 2").Return(-34.6098, -58.3923, nil)
	locator.On("Locate", mock.Anything, "Unknown 3").Return(0.0, 0.0, errors.New("no results"))

	target := models.TargetProperty{Address: "Target 1"}
	comps := []models.Comparable{
		{ID: "a", TargetProperty: models.TargetProperty{Address: "Near 2"}, Price: 100},
		{ID: "b", TargetProperty: models.TargetProperty{Address: "Unknown 3"}, Price: 200},
	}

	report := Distances(context.Background(), locator, target, comps, logrus.New())

	require.NotNil(t, report.Target)
	require.Len(t, report.Comparables, 2)
	require.NotNil(t, report.Comparables[0].DistanceKm)
	assert.InDelta(t, 1.19, *report.Comparables[0].DistanceKm, 0.05)
	assert.Nil(t, report.Comparables[1].DistanceKm)
	assert.Nil(t, report.Comparables[1].Location)

	// target plus the one located comparable
	assert.Len(t, report.Features.Features, 2)
	assert.NotNil(t, report.Features.BBox)
	locator.AssertExpectations(t)
}

func TestDistancesWithoutTargetLocation(t *testing.T) {
	locator := new(MockLocator)
	locator.On("Locate", mock.Anything, "").Return(0.0, 0.0, errors.New("empty address"))
	locator.On("Locate", mock.Anything, "Near 2").Return(-34.6098, -58.3923, nil)

	comps := []models.Comparable{{ID: "a", TargetProperty: models.TargetProperty{Address: "Near 2"}}}
	report := Distances(context.Background(), locator, models.TargetProperty{}, comps, nil)

	assert.Nil(t, report.Target)
	require.Len(t, report.Comparables, 1)
	assert.NotNil(t, report.Comparables[0].Location)
	assert.Nil(t, report.Comparables[0].DistanceKm)
}
