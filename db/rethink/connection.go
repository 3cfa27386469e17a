//Package rethink implements the reaction-role store on top of RethinkDB.
package rethink

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
)

const dbAddrEnvVar string = "KOALA_DB_ADDR"
const dbNameDefault string = "koala"
const dbNameEnvVar string = "KOALA_DB_NAME"
const baseDbPoolConnections int = 2
const maxDbPoolConnections int = 20

const (
	guildsTable        string = "guilds"
	messagesTable      string = "rfr_messages"
	bindingsTable      string = "rfr_bindings"
	requiredRolesTable string = "rfr_required_roles"
	roleClaimsTable    string = "rfr_binding_roles"
)

var allTables = []string{guildsTable, messagesTable, bindingsTable, requiredRolesTable, roleClaimsTable}

//Connection contains a handle to the database
type Connection struct {
	session *rethink.Session
}

//Init creates a new connection pool for the database at the address provided by the relevant environment variable
func Init() (*Connection, error) {
	//Get DB name from env
	dbName, exists := os.LookupEnv(dbNameEnvVar)
	if !exists {
		logrus.Warnf("DB name was not provided, falling back to default `%v`", dbNameDefault)
		dbName = dbNameDefault
	}
	//Get DB address from env
	rethinkDBAddr, exists := os.LookupEnv(dbAddrEnvVar)
	if !exists {
		logrus.Errorf("`%v` env variable was not set.", dbAddrEnvVar)
		return nil, fmt.Errorf("`%v` env variable was not set", dbAddrEnvVar)
	}
	//Create new connection pool to db
	session, err := rethink.Connect(rethink.ConnectOpts{
		Address:    rethinkDBAddr,
		Database:   dbName,
		InitialCap: baseDbPoolConnections,
		MaxOpen:    maxDbPoolConnections,
	})
	if err != nil {
		logrus.Errorf("Failed to create connection to rethinkdb instance at address %v because %v.", rethinkDBAddr, err)
		return nil, fmt.Errorf("failed to create connection to rethinkdb instance at address %v: %w", rethinkDBAddr, err)
	}

	res := Connection{
		session: session,
	}

	//Ensure database and required tables exist, and wait for it all to be ready
	res.CreateDatabase(dbName)
	res.CreateTables()

	return &res, nil
}

//Close cleanly terminates the database connection
func (db *Connection) Close() {
	logrus.Info("Terminating DB connection...")
	_ = db.session.Close()
}

//CreateTables ensures all tables needed exist.
func (db *Connection) CreateTables() {
	for _, table := range allTables {
		_, err := rethink.TableCreate(table, rethink.TableCreateOpts{
			PrimaryKey: "id",
		}).RunWrite(db.session)
		if err != nil {
			logrus.Warnf("Failed to create %v table due to error %v", table, err)
		}
	}
	//Bindings are joined against messages by group
	_, err := rethink.Table(bindingsTable).IndexCreate("group_id").RunWrite(db.session)
	if err != nil {
		logrus.Warnf("Failed to create group_id index on %v due to error %v", bindingsTable, err)
	}
	err = rethink.Table(bindingsTable).IndexWait().Exec(db.session)
	if err != nil {
		logrus.Warnf("Failed waiting for %v indexes due to error %v", bindingsTable, err)
	}
	//Wait for all tables
	for _, table := range allTables {
		_, err := rethink.Table(table).Wait(rethink.WaitOpts{WaitFor: "ready_for_writes"}).RunWrite(db.session)
		if err != nil {
			logrus.Warnf("Failed waiting for %v table due to error %v", table, err)
		}
	}
}

//CreateDatabase ensures the koala database exists
func (db *Connection) CreateDatabase(dbName string) {
	_, err := rethink.DBCreate(dbName).RunWrite(db.session)
	if err != nil {
		logrus.Warnf("Failed to create %v DB due to error %v", dbName, err)
	}
}

//fetchByID reads the document with the given primary key into out, reporting false if there is none
func (db *Connection) fetchByID(table string, id interface{}, out interface{}) (bool, error) {
	res, err := rethink.Table(table).Get(id).Run(db.session)
	if err != nil {
		return false, err
	}
	defer res.Close()
	if res.IsNil() {
		return false, nil
	}
	if err := res.One(out); err != nil {
		if err == rethink.ErrEmptyResult {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func writeErr(resp rethink.WriteResponse, err error) error {
	if err != nil {
		return err
	}
	if resp.Errors > 0 {
		return fmt.Errorf("%v", resp.FirstError)
	}
	return nil
}
