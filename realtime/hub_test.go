package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proposta360/proposal-analytics/models"
)

// nextFrame pops one queued frame and decodes its envelope.
func nextFrame(t *testing.T, conn *Connection) map[string]interface{} {
	t.Helper()
	select {
	case data := <-conn.Messages():
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func TestConnect_SendsConnectedFrame(t *testing.T) {
	hub := NewHub(nil)

	conn := hub.Connect(1)
	defer hub.Disconnect(1, conn)

	frame := nextFrame(t, conn)
	assert.Equal(t, "connected", frame["type"])
	assert.NotEmpty(t, frame["timestamp"])
}

func TestConnect_ReplaysUnreadNotifications(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM notifications").
		WithArgs(int64(1), UnreadReplayLimit).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "proposal_id", "type", "title", "message",
			"read", "sent_email", "sent_whatsapp", "created_at",
		}).
			AddRow(2, 1, 7, "proposal_view", "Proposal being viewed!", "m", false, true, false, now).
			AddRow(1, 1, 7, "new_visitor", "New visitor on your proposal!", "m", false, true, false, now.Add(-time.Minute)))

	hub := NewHub(db)
	conn := hub.Connect(1)
	defer hub.Disconnect(1, conn)

	connected := nextFrame(t, conn)
	require.Equal(t, "connected", connected["type"])

	replay := nextFrame(t, conn)
	assert.Equal(t, "unread_notifications", replay["type"])
	assert.EqualValues(t, 2, replay["count"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPush_FansOutToOneUserOnly(t *testing.T) {
	hub := NewHub(nil)

	first := hub.Connect(1)
	second := hub.Connect(1)
	other := hub.Connect(2)
	defer hub.Disconnect(1, first)
	defer hub.Disconnect(1, second)
	defer hub.Disconnect(2, other)

	// Drain the connected frames.
	nextFrame(t, first)
	nextFrame(t, second)
	nextFrame(t, other)

	hub.PushNotification(1, &models.Notification{ID: 5, UserID: 1, Type: "approved"})

	assert.Equal(t, "notification", nextFrame(t, first)["type"])
	assert.Equal(t, "notification", nextFrame(t, second)["type"])

	select {
	case data := <-other.Messages():
		t.Fatalf("user 2 received user 1's notification: %s", data)
	default:
	}
}

func TestPush_PreservesOrderPerConnection(t *testing.T) {
	hub := NewHub(nil)

	conn := hub.Connect(1)
	defer hub.Disconnect(1, conn)
	nextFrame(t, conn)

	hub.PushNotification(1, &models.Notification{ID: 1, UserID: 1})
	hub.PushNotification(1, &models.Notification{ID: 2, UserID: 1})

	for _, wantID := range []float64{1, 2} {
		frame := nextFrame(t, conn)
		notification := frame["notification"].(map[string]interface{})
		assert.Equal(t, wantID, notification["id"])
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	hub := NewHub(nil)

	conn := hub.Connect(1)
	hub.Disconnect(1, conn)
	hub.Disconnect(1, conn) // second call must be a no-op

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done channel not closed after disconnect")
	}

	users, total := hub.ConnectionStats()
	assert.Equal(t, 0, users)
	assert.Equal(t, 0, total)
}

func TestBroadcast_ReachesEveryUser(t *testing.T) {
	hub := NewHub(nil)

	first := hub.Connect(1)
	second := hub.Connect(2)
	defer hub.Disconnect(1, first)
	defer hub.Disconnect(2, second)
	nextFrame(t, first)
	nextFrame(t, second)

	hub.Broadcast(Frame("ping", nil))

	assert.Equal(t, "ping", nextFrame(t, first)["type"])
	assert.Equal(t, "ping", nextFrame(t, second)["type"])
}

func TestPush_PrunesSlowConnection(t *testing.T) {
	hub := NewHub(nil)

	conn := hub.Connect(1)

	// Never drain: the connected frame plus connBuffer pushes fill the queue,
	// so the next push finds it full and drops the connection.
	for i := 0; i < connBuffer+1; i++ {
		hub.Push(1, Frame("ping", nil))
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("slow connection was not pruned")
	}

	users, total := hub.ConnectionStats()
	assert.Equal(t, 0, users)
	assert.Equal(t, 0, total)
}

func TestConnectionStats(t *testing.T) {
	hub := NewHub(nil)

	first := hub.Connect(1)
	second := hub.Connect(1)
	third := hub.Connect(2)
	defer hub.Disconnect(1, first)
	defer hub.Disconnect(1, second)
	defer hub.Disconnect(2, third)

	users, total := hub.ConnectionStats()
	assert.Equal(t, 2, users)
	assert.Equal(t, 3, total)
}
