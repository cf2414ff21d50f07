// Package mongo implements vote and community storage on MongoDB. Change capture uses
// change streams with pre-images, so the server must run as a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultCollection holds one document per (subject_id, voter_id).
const DefaultCollection = "votes"

// Community collections.
const (
	CommentsCollection = "comments"
	NotesCollection    = "community_notes"
)

// Document keys.
const (
	keySubjectID = "subject_id"
	keyVoterID   = "voter_id"
	keyVoteType  = "vote_type"
	keyVotedAt   = "voted_at"

	keyAuthorWallet    = "author_wallet"
	keySlot            = "slot"
	keyCreatedAt       = "created_at"
	keySubmitterWallet = "submitter_wallet"
)

// namespaceExists is returned by create on an existing collection.
const namespaceExists = 48

// Connect opens a client and verifies the primary is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// EnsureSchema creates the votes collection with pre-images enabled and
// the unique pair index. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, db *mongo.Database, collection string) error {
	err := db.CreateCollection(ctx, collection)
	var cmdErr mongo.CommandError
	if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Code == namespaceExists) {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}

	if err := db.RunCommand(ctx, bson.D{
		{Key: "collMod", Value: collection},
		{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
	}).Err(); err != nil {
		return fmt.Errorf("enable pre-images on %s: %w", collection, err)
	}

	_, err = db.Collection(collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: keySubjectID, Value: 1}, {Key: keyVoterID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("votes_subject_voter_key"),
		},
		{Keys: bson.D{{Key: keyVoterID, Value: 1}}},
		{Keys: bson.D{{Key: keySubjectID, Value: 1}, {Key: keyVotedAt, Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes on %s: %w", collection, err)
	}
	return nil
}

// EnsureCommunitySchema creates the indexes backing the comment cap and the
// one-note-per-submitter rule. Safe to call repeatedly.
func EnsureCommunitySchema(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CommentsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: keySubjectID, Value: 1},
				{Key: keyAuthorWallet, Value: 1},
				{Key: keySlot, Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("comments_subject_author_slot_key"),
		},
		{Keys: bson.D{{Key: keySubjectID, Value: 1}, {Key: keyCreatedAt, Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes on %s: %w", CommentsCollection, err)
	}

	_, err = db.Collection(NotesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: keySubjectID, Value: 1}, {Key: keySubmitterWallet, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("community_notes_subject_submitter_key"),
	})
	if err != nil {
		return fmt.Errorf("create indexes on %s: %w", NotesCollection, err)
	}
	return nil
}
