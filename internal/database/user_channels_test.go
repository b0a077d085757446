package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertUserChannel_Defaults(t *testing.T) {
	db := NewTestDB(t)
	user := CreateTestUser(t, db)

	require.NoError(t, db.UpsertUserChannel(user.ID, "whatsapp", "personal"))

	uc, err := db.GetUserChannel(user.ID, "whatsapp", "personal")
	require.NoError(t, err)
	require.NotNil(t, uc)
	require.False(t, uc.Enabled)
	require.Equal(t, "disconnected", uc.Status)
	require.False(t, uc.AutoReply)
}

func TestUpsertUserChannel_DoesNotResetFlags(t *testing.T) {
	db := NewTestDB(t)
	user := CreateTestUser(t, db)

	require.NoError(t, db.UpsertUserChannel(user.ID, "whatsapp", "personal"))
	require.NoError(t, db.SetChannelStatus(user.ID, "whatsapp", "personal", true, "connected"))
	require.NoError(t, db.SetAutoReply(user.ID, "whatsapp", "personal", true))

	// A second upsert must leave the existing record intact.
	require.NoError(t, db.UpsertUserChannel(user.ID, "whatsapp", "personal"))

	uc, err := db.GetUserChannel(user.ID, "whatsapp", "personal")
	require.NoError(t, err)
	require.True(t, uc.Enabled)
	require.Equal(t, "connected", uc.Status)
	require.True(t, uc.AutoReply)
}

func TestSetAutoReply_MissingRecord(t *testing.T) {
	db := NewTestDB(t)
	user := CreateTestUser(t, db)

	err := db.SetAutoReply(user.ID, "whatsapp", "personal", true)
	require.Error(t, err)
}

func TestModesAreIndependentRecords(t *testing.T) {
	db := NewTestDB(t)
	user := CreateTestUser(t, db)

	require.NoError(t, db.UpsertUserChannel(user.ID, "telegram", "personal"))
	require.NoError(t, db.UpsertUserChannel(user.ID, "telegram", "business"))
	require.NoError(t, db.SetChannelStatus(user.ID, "telegram", "business", true, "connected"))

	personal, err := db.GetUserChannel(user.ID, "telegram", "personal")
	require.NoError(t, err)
	require.False(t, personal.Enabled)

	business, err := db.GetUserChannel(user.ID, "telegram", "business")
	require.NoError(t, err)
	require.True(t, business.Enabled)

	channels, err := db.ListUserChannels(user.ID)
	require.NoError(t, err)
	require.Len(t, channels, 2)
}

func TestListEnabledChannels_AcrossUsers(t *testing.T) {
	db := NewTestDB(t)
	alice := CreateTestUser(t, db)
	bob := CreateTestUser(t, db)

	require.NoError(t, db.UpsertUserChannel(alice.ID, "telegram", "business"))
	require.NoError(t, db.SetChannelStatus(alice.ID, "telegram", "business", true, "connected"))
	require.NoError(t, db.SetChannelConfig(alice.ID, "telegram", "business", `{"token":"123:abc"}`))
	require.NoError(t, db.UpsertUserChannel(bob.ID, "telegram", "business"))

	enabled, err := db.ListEnabledChannels("telegram")
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, alice.ID, enabled[0].UserID)
	require.Equal(t, `{"token":"123:abc"}`, enabled[0].Config)
}
