package store

// DeliveryRecord is the local history of an executed delivery.
type DeliveryRecord struct {
	ID              int64  `json:"id"`
	DeliveryID      int64  `json:"delivery_id"`
	PlayerUsername  string `json:"player_username"`
	PlayerUUID      string `json:"player_uuid"`
	PackageName     string `json:"package_name"`
	Status          string `json:"status"`
	ActionsTotal    int    `json:"actions_total"`
	ActionsExecuted int    `json:"actions_executed"`
	ErrorMessage    string `json:"error_message"`
	DurationMS      int64  `json:"duration_ms"`
	Source          string `json:"source"`
	Reported        bool   `json:"reported"`
	CreatedAt       string `json:"created_at"`
}

// CommandLogEntry records a single command run for a delivery.
type CommandLogEntry struct {
	ID         int64  `json:"id"`
	DeliveryID int64  `json:"delivery_id"`
	Command    string `json:"command"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	CreatedAt  string `json:"created_at"`
}

const deliverySelectCols = `id, delivery_id, player_username, player_uuid, package_name,
	status, actions_total, actions_executed, error_message, duration_ms, source, reported, created_at`

// RecordDelivery inserts or replaces the history row for a delivery.
// Replaces so a re-pushed delivery keeps a single row with its latest outcome.
func (db *DB) RecordDelivery(r DeliveryRecord) (int64, error) {
	reported := 0
	if r.Reported {
		reported = 1
	}
	res, err := db.Exec(`INSERT OR REPLACE INTO deliveries
		(delivery_id, player_username, player_uuid, package_name, status,
		 actions_total, actions_executed, error_message, duration_ms, source, reported)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DeliveryID, r.PlayerUsername, r.PlayerUUID, r.PackageName, r.Status,
		r.ActionsTotal, r.ActionsExecuted, r.ErrorMessage, r.DurationMS, r.Source, reported)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) ListDeliveries(limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+deliverySelectCols+` FROM deliveries
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeliveryRecord
	for rows.Next() {
		var r DeliveryRecord
		var reported int
		if err := rows.Scan(&r.ID, &r.DeliveryID, &r.PlayerUsername, &r.PlayerUUID, &r.PackageName,
			&r.Status, &r.ActionsTotal, &r.ActionsExecuted, &r.ErrorMessage, &r.DurationMS, &r.Source, &reported, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Reported = reported != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) ListDeliveriesForPlayer(username string, limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+deliverySelectCols+` FROM deliveries
		WHERE player_username = ? COLLATE NOCASE
		ORDER BY created_at DESC, id DESC LIMIT ?`, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeliveryRecord
	for rows.Next() {
		var r DeliveryRecord
		var reported int
		if err := rows.Scan(&r.ID, &r.DeliveryID, &r.PlayerUsername, &r.PlayerUUID, &r.PackageName,
			&r.Status, &r.ActionsTotal, &r.ActionsExecuted, &r.ErrorMessage, &r.DurationMS, &r.Source, &reported, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Reported = reported != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) CountDeliveries() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&n)
	return n, err
}

func (db *DB) LogCommand(e CommandLogEntry) error {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := db.Exec(`INSERT INTO command_log (delivery_id, command, success, error)
		VALUES (?, ?, ?, ?)`, e.DeliveryID, e.Command, success, e.Error)
	return err
}

func (db *DB) ListCommandLog(deliveryID int64) ([]CommandLogEntry, error) {
	rows, err := db.Query(`SELECT id, delivery_id, command, success, error, created_at
		FROM command_log WHERE delivery_id = ? ORDER BY id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommandLogEntry
	for rows.Next() {
		var e CommandLogEntry
		var success int
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.Command, &success, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Success = success != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
