// Package mongostore keeps notices in a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"nebs-backend/internal/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/description"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collectionName  = "notices"
	defaultDatabase = "nebs-backend"
)

// Store is a domain.NoticeRepository backed by a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	host   string
}

// errPrimaryLost is reported when the topology loses its writable server
// without any server recording an error.
var errPrimaryLost = errors.New("mongodb: no writable server in topology")

// Connect dials uri and pings the primary. onLost is called from the driver's
// monitoring goroutines when the topology goes from having a writable server
// to having none. Failures of single members that leave a primary do not count.
func Connect(ctx context.Context, uri, database string, onLost func(error)) (*Store, error) {
	host, dbFromURI := parseURI(uri)
	if database == "" {
		database = dbFromURI
	}
	if database == "" {
		database = defaultDatabase
	}

	monitor := &event.ServerMonitor{
		TopologyDescriptionChanged: watchTopology(onLost),
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerMonitor(monitor).
		SetAppName("nebs-backend")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
		host:   host,
	}, nil
}

// watchTopology calls onLost on each transition out of a writable topology.
// The driver holds the topology lock while calling it, so onLost must not
// use the client.
func watchTopology(onLost func(error)) func(*event.TopologyDescriptionChangedEvent) {
	return func(e *event.TopologyDescriptionChangedEvent) {
		if onLost == nil || e.NewDescription.Kind == description.LoadBalanced {
			return
		}
		if !e.PreviousDescription.HasWritableServer() || e.NewDescription.HasWritableServer() {
			return
		}
		onLost(topologyError(e.NewDescription))
	}
}

func topologyError(t description.Topology) error {
	for _, srv := range t.Servers {
		if srv.LastError != nil {
			return srv.LastError
		}
	}
	return errPrimaryLost
}

// parseURI returns the first host (without port) and the database path segment.
func parseURI(uri string) (host, database string) {
	_, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return "", ""
	}
	authority, path, _ := strings.Cut(rest, "/")
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		authority = authority[i+1:]
	}
	host, _, _ = strings.Cut(authority, ",")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	database, _, _ = strings.Cut(path, "?")
	return host, database
}

func (s *Store) Host() string { return s.host }

func (s *Store) Notices() domain.NoticeRepository { return s }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Migrate ensures the (status, createdAt desc) index used by listings.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("status_createdAt"),
	})
	return err
}

func (s *Store) Create(ctx context.Context, n *domain.Notice) error {
	n.Normalize()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.PublishDate.IsZero() {
		n.PublishDate = now
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	_, err := s.coll.InsertOne(ctx, n)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Notice, error) {
	var n domain.Notice
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		return nil, mapErr(err)
	}
	n.Normalize()
	return &n, nil
}

func filterDoc(f domain.NoticeFilter) bson.M {
	q := bson.M{}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.NoticeType != "" {
		q["noticeType"] = f.NoticeType
	}
	if f.TargetType != "" {
		q["targetType"] = f.TargetType
	}
	return q
}

func (s *Store) List(ctx context.Context, f domain.NoticeFilter, skip, limit int) ([]domain.Notice, int64, error) {
	q := filterDoc(f)
	total, err := s.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, err
	}
	items := make([]domain.Notice, 0, limit)
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Normalize()
	}
	return items, total, nil
}

func (s *Store) Update(ctx context.Context, id string, patch domain.NoticePatch) (*domain.Notice, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(n)
	n.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	var out domain.Notice
	err = s.coll.FindOneAndReplace(ctx, bson.M{"_id": id}, n,
		options.FindOneAndReplace().SetReturnDocument(options.After)).Decode(&out)
	if err != nil {
		return nil, mapErr(err)
	}
	out.Normalize()
	return &out, nil
}

func (s *Store) Delete(ctx context.Context, id string) (*domain.Notice, error) {
	var n domain.Notice
	if err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		return nil, mapErr(err)
	}
	return &n, nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNoticeNotFound
	}
	return err
}
