package main

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo store, the primary adapter. User documents live in a single
// collection with a unique index on email.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoUser struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Age       int                `bson:"age"`
	Password  string             `bson:"password,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d *mongoUser) toUser() *User {
	return &User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Age:       d.Age,
		Password:  d.Password,
		CreatedAt: d.CreatedAt,
	}
}

func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	s := &MongoStore{client: client, collection: client.Database(dbName).Collection("users")}
	if err := s.Init(); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

// mongoID parses the opaque id the API hands around. A string that is not a
// valid ObjectID cannot match any document.
func mongoID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]*User, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*User
	for cursor.Next(ctx) {
		var doc mongoUser
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, doc.toUser())
	}
	return users, cursor.Err()
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*User, error) {
	oid, ok := mongoID(id)
	if !ok {
		return nil, ErrNotFound
	}
	var doc mongoUser
	err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var doc mongoUser
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	doc := mongoUser{
		ID:        primitive.NewObjectID(),
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		Password:  u.Password,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return doc.toUser(), nil
}

func (s *MongoStore) ReplaceUser(ctx context.Context, id, name, email string, age int) (bool, error) {
	oid, ok := mongoID(id)
	if !ok {
		return false, nil
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"name": name, "email": email, "age": age}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, ErrDuplicateEmail
		}
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) PatchUser(ctx context.Context, id string, p UserPatch) (bool, error) {
	oid, ok := mongoID(id)
	if !ok {
		return false, nil
	}
	set := bson.M{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.Age != nil {
		set["age"] = *p.Age
	}
	if p.Password != nil {
		set["password"] = *p.Password
	}
	if len(set) == 0 {
		err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Err()
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return err == nil, err
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, ErrDuplicateEmail
		}
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	oid, ok := mongoID(id)
	if !ok {
		return false, nil
	}
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// lifecycle helpers
func (s *MongoStore) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ping() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx, nil) == nil
}
