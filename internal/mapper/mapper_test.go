/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mapper

import "testing"

func TestParseRealmMap(t *testing.T) {
	p, err := Parse([]byte("BAT_MAPPER;;REALM_MAP;;"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.Kind != KindRealmMap {
		t.Fatalf("Kind = %v, want KindRealmMap", p.Kind)
	}
}

func TestParseAreaRoom(t *testing.T) {
	body := "BAT_MAPPER;;area1;;room_id_x;;east;;1;;Short;;Long line A\nLong line B;;north,south;;"
	p, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.Kind != KindAreaRoom {
		t.Fatalf("Kind = %v, want KindAreaRoom", p.Kind)
	}
	want := AreaRoom{
		Area:   "area1",
		ID:     "room_id_x",
		From:   "east",
		Indoor: true,
		Short:  "Short",
		Long:   "Long line A\nLong line B",
		Exits:  "north,south",
	}
	if p.Room != want {
		t.Fatalf("Room = %+v, want %+v", p.Room, want)
	}
}

func TestParseAreaRoomOutdoor(t *testing.T) {
	body := "BAT_MAPPER;;area1;;room_id_x;;east;;0;;Short;;Long;;north;;"
	p, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.Room.Indoor {
		t.Fatal("Indoor = true, want false")
	}
}

func TestParseNotMapper(t *testing.T) {
	if _, err := Parse([]byte("some other payload")); err != ErrNotMapper {
		t.Fatalf("err = %v, want ErrNotMapper", err)
	}
}

func TestParseInvalidFieldCount(t *testing.T) {
	if _, err := Parse([]byte("BAT_MAPPER;;only;;three;;fields;;")); err != ErrInvalidMapper {
		t.Fatalf("err = %v, want ErrInvalidMapper", err)
	}
}

func TestParseNoTrailingDelimiter(t *testing.T) {
	// Even without the conventional trailing ";;", a well-formed field
	// count is still accepted: the trailing-empty-token trim only
	// triggers when the split actually produces one.
	p, err := Parse([]byte("BAT_MAPPER;;REALM_MAP"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.Kind != KindRealmMap {
		t.Fatalf("Kind = %v, want KindRealmMap", p.Kind)
	}
}
