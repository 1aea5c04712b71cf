package queue

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func twoQueues() Route {
	return Route{Destinations: []Destination{
		{Name: "billing", Options: Options{OptAttempts: 5}},
		{Name: "audit"},
	}}
}

type RouterSuite struct {
	suite.Suite
	router *Router
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	r, err := NewRouter()
	s.Require().NoError(err)
	s.router = r
}

func (s *RouterSuite) TestAddAndGet() {
	s.Require().NoError(AddRouteFor[orderPlaced](s.router, twoQueues()))

	route, ok := RouteFor[orderPlaced](s.router)
	s.Require().True(ok)
	s.Assert().Equal(twoQueues(), route)
}

func (s *RouterSuite) TestMissingRoute() {
	_, ok := RouteFor[orderPlaced](s.router)
	s.Assert().False(ok)
}

func (s *RouterSuite) TestEmptyRouteIsRejected() {
	err := AddRouteFor[orderPlaced](s.router, Route{})

	s.Assert().ErrorIs(err, ErrEmptyRoute)
	_, ok := RouteFor[orderPlaced](s.router)
	s.Assert().False(ok)
}

func (s *RouterSuite) TestDuplicateDestinationKeepsExistingRoute() {
	s.Require().NoError(AddRouteFor[orderPlaced](s.router, twoQueues()))

	err := AddRouteFor[orderPlaced](s.router, Route{Destinations: []Destination{{Name: "q1"}, {Name: "q1"}}})

	var dup *DuplicateDestinationError
	s.Require().ErrorAs(err, &dup)
	s.Assert().Equal("q1", dup.Name)
	s.Assert().ErrorIs(err, ErrDuplicateDestination)

	route, _ := RouteFor[orderPlaced](s.router)
	s.Assert().Equal(twoQueues(), route)
}

func (s *RouterSuite) TestUnnamedDestinationIsRejected() {
	err := AddRouteFor[orderPlaced](s.router, Route{Destinations: []Destination{{Name: ""}}})

	s.Assert().ErrorIs(err, ErrEmptyDestinationName)
}

func (s *RouterSuite) TestUnknownStrategyIsRejected() {
	err := AddRouteFor[orderPlaced](s.router, Route{Destinations: []Destination{{Name: "a", Strategy: "merge"}}})

	s.Assert().ErrorIs(err, ErrUnknownStrategy)
}

func (s *RouterSuite) TestAddRouteReplaces() {
	s.Require().NoError(AddRouteFor[orderPlaced](s.router, twoQueues()))
	s.Require().NoError(AddRouteFor[orderPlaced](s.router, Route{Destinations: []Destination{{Name: "only"}}}))

	route, _ := RouteFor[orderPlaced](s.router)
	s.Assert().Equal([]Destination{{Name: "only"}}, route.Destinations)
}

func (s *RouterSuite) TestOverrideRouteRequiresExistingRoute() {
	t := reflect.TypeFor[orderPlaced]()

	err := s.router.OverrideRoute(t, twoQueues())
	s.Assert().ErrorIs(err, ErrRouteNotFound)

	s.Require().NoError(s.router.AddRoute(t, Route{Destinations: []Destination{{Name: "first"}}}))
	s.Require().NoError(s.router.OverrideRoute(t, twoQueues()))

	route, _ := s.router.Route(t)
	s.Assert().Equal(twoQueues(), route)
}

func (s *RouterSuite) TestOverrideRouteValidatesFirst() {
	t := reflect.TypeFor[orderPlaced]()
	s.Require().NoError(s.router.AddRoute(t, twoQueues()))

	s.Assert().ErrorIs(s.router.OverrideRoute(t, Route{}), ErrEmptyRoute)

	route, _ := s.router.Route(t)
	s.Assert().Equal(twoQueues(), route)
}

func (s *RouterSuite) TestRoutesAreCopied() {
	in := twoQueues()
	s.Require().NoError(AddRouteFor[orderPlaced](s.router, in))

	in.Destinations[0].Name = "changed"
	in.Destinations[0].Options[OptAttempts] = 99

	out, _ := RouteFor[orderPlaced](s.router)
	out.Destinations[1].Name = "changed too"

	again, _ := RouteFor[orderPlaced](s.router)
	s.Assert().Equal(twoQueues(), again)
}

func TestNewRouter(t *testing.T) {
	t.Run("stores initial routes", func(t *testing.T) {
		r, err := NewRouter(RouteDefinitionFor[orderPlaced](twoQueues()))
		require.NoError(t, err)

		_, ok := RouteFor[orderPlaced](r)
		assert.True(t, ok)
	})

	t.Run("fails on an invalid initial route", func(t *testing.T) {
		r, err := NewRouter(
			RouteDefinitionFor[orderPlaced](twoQueues()),
			RouteDefinitionFor[sendEmail](Route{}),
		)
		assert.ErrorIs(t, err, ErrEmptyRoute)
		assert.Nil(t, r)
	})

	t.Run("fails on a definition without type", func(t *testing.T) {
		_, err := NewRouter(RouteDefinition{Route: twoQueues()})
		assert.ErrorIs(t, err, ErrNotHandlable)
	})
}

func TestResolveOptions(t *testing.T) {
	own := Options{OptAttempts: 3, OptDelay: 1000, OptPriority: 1}

	tests := []struct {
		name string
		dest Destination
		want Options
	}{
		{
			name: "override merges with destination winning",
			dest: Destination{Name: "q", Options: Options{OptAttempts: 5, OptPriority: 10}, Strategy: StrategyOverride},
			want: Options{OptAttempts: 5, OptDelay: 1000, OptPriority: 10},
		},
		{
			name: "rewrite replaces",
			dest: Destination{Name: "q", Options: Options{OptAttempts: 5, OptPriority: 10}, Strategy: StrategyRewrite},
			want: Options{OptAttempts: 5, OptPriority: 10},
		},
		{
			name: "unset strategy overrides",
			dest: Destination{Name: "q", Options: Options{OptDelay: 0}},
			want: Options{OptAttempts: 3, OptDelay: 0, OptPriority: 1},
		},
		{
			name: "no destination options keeps own",
			dest: Destination{Name: "q", Strategy: StrategyRewrite},
			want: own,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveOptions(own, tt.dest)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("never aliases inputs", func(t *testing.T) {
		dest := Destination{Name: "q", Options: Options{OptAttempts: 5}, Strategy: StrategyRewrite}
		got := ResolveOptions(own, dest)
		got[OptAttempts] = 7

		assert.Equal(t, 5, dest.Options[OptAttempts])
		assert.Equal(t, 3, own[OptAttempts])
	})
}
