package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/nearbyhal/internal/testutils"
	"github.com/srg/nearbyhal/pkg/hal"
)

type StoreTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	path   string
	store  *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.path = filepath.Join(s.T().TempDir(), "nested", "dir", "hal.db")
	store, err := Open(s.path, s.helper.Logger)
	s.Require().NoError(err)
	s.store = store
	s.Require().Equal(hal.StatusOK, s.store.Init())
}

func (s *StoreTestSuite) TearDownTest() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
}

func (s *StoreTestSuite) TestRoundTrip() {
	s.Equal(hal.StatusOK, s.store.Write("device.name", []byte("pixel")))
	v, st := s.store.Read("device.name")
	s.Equal(hal.StatusOK, st)
	s.Equal([]byte("pixel"), v)

	s.Equal(hal.StatusOK, s.store.Write("device.name", []byte("buds")))
	v, _ = s.store.Read("device.name")
	s.Equal([]byte("buds"), v)
}

func (s *StoreTestSuite) TestEmptyValue() {
	s.Equal(hal.StatusOK, s.store.Write("flag", nil))
	v, st := s.store.Read("flag")
	s.Equal(hal.StatusOK, st)
	s.NotNil(v)
	s.Empty(v)
}

func (s *StoreTestSuite) TestMissingAndInvalidKeys() {
	_, st := s.store.Read("absent")
	s.Equal(hal.StatusNotFound, st)
	s.Equal(hal.StatusOK, s.store.Delete("absent"))

	_, st = s.store.Read("")
	s.Equal(hal.StatusInvalidArgument, st)
	s.Equal(hal.StatusInvalidArgument, s.store.Write("", []byte{1}))
	s.Equal(hal.StatusInvalidArgument, s.store.Delete(""))
}

func (s *StoreTestSuite) TestDelete() {
	s.Require().Equal(hal.StatusOK, s.store.Write("k", []byte{1}))
	s.Equal(hal.StatusOK, s.store.Delete("k"))
	_, st := s.store.Read("k")
	s.Equal(hal.StatusNotFound, st)
}

func (s *StoreTestSuite) TestSurvivesReopen() {
	s.Require().Equal(hal.StatusOK, s.store.Write("b", []byte{0xde, 0xad}))
	s.Require().Equal(hal.StatusOK, s.store.Write("a", []byte{0xbe, 0xef}))
	s.Require().NoError(s.store.Close())

	store, err := Open(s.path, s.helper.Logger)
	s.Require().NoError(err)
	s.store = store

	v, st := s.store.Read("b")
	s.Equal(hal.StatusOK, st)
	s.Equal([]byte{0xde, 0xad}, v)

	keys, err := s.store.Keys(context.Background())
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, keys)
}

func (s *StoreTestSuite) TestClosedStoreReportsIOError() {
	s.Require().NoError(s.store.Close())
	s.Equal(hal.StatusIOError, s.store.Write("k", []byte{1}))
	_, st := s.store.Read("k")
	s.Equal(hal.StatusIOError, st)
	s.store = nil
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
