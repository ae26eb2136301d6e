package redisstore

import "github.com/redis/go-redis/v9"

// Key layout, all under the configured prefix P:
//
//	P:req:<id>               hash  doc, owner, status, position, updated
//	P:q:<owner>:<status>     zset  request ids scored by position
//	P:owner:<owner>          set   every request id of the owner
//	P:artist:<username>      string artist JSON
//	P:artist-email:<email>   string username
//
// Scripts build keys from the prefix themselves, so they assume a
// non-clustered Redis.

var insertScript = redis.NewScript(`
local key = ARGV[1] .. ':req:' .. ARGV[2]
if redis.call('EXISTS', key) == 1 then
	return 0
end
redis.call('HSET', key, 'doc', ARGV[3], 'owner', ARGV[4], 'status', ARGV[5], 'position', ARGV[6], 'updated', ARGV[7])
redis.call('ZADD', ARGV[1] .. ':q:' .. ARGV[4] .. ':' .. ARGV[5], ARGV[6], ARGV[2])
redis.call('SADD', ARGV[1] .. ':owner:' .. ARGV[4], ARGV[2])
return 1
`)

var getScript = redis.NewScript(`
return redis.call('HMGET', ARGV[1] .. ':req:' .. ARGV[2], 'doc', 'status', 'position', 'updated')
`)

var deleteScript = redis.NewScript(`
local key = ARGV[1] .. ':req:' .. ARGV[2]
if redis.call('EXISTS', key) == 0 then
	return 0
end
local owner = redis.call('HGET', key, 'owner')
local status = redis.call('HGET', key, 'status')
redis.call('ZREM', ARGV[1] .. ':q:' .. owner .. ':' .. status, ARGV[2])
redis.call('SREM', ARGV[1] .. ':owner:' .. owner, ARGV[2])
redis.call('DEL', key)
return 1
`)

// ARGV: prefix, id, new status or '', new position or '', updated
var updateScript = redis.NewScript(`
local key = ARGV[1] .. ':req:' .. ARGV[2]
if redis.call('EXISTS', key) == 0 then
	return 0
end
local owner = redis.call('HGET', key, 'owner')
local old = redis.call('HGET', key, 'status')
local status = old
local position = redis.call('HGET', key, 'position')
if ARGV[3] ~= '' then status = ARGV[3] end
if ARGV[4] ~= '' then position = ARGV[4] end
redis.call('ZREM', ARGV[1] .. ':q:' .. owner .. ':' .. old, ARGV[2])
redis.call('ZADD', ARGV[1] .. ':q:' .. owner .. ':' .. status, position, ARGV[2])
redis.call('HSET', key, 'status', status, 'position', position, 'updated', ARGV[5])
return 1
`)

// ARGV: prefix, owner, status, min, max, delta, updated
var shiftScript = redis.NewScript(`
local zkey = ARGV[1] .. ':q:' .. ARGV[2] .. ':' .. ARGV[3]
local ids = redis.call('ZRANGEBYSCORE', zkey, ARGV[4], ARGV[5])
for _, id in ipairs(ids) do
	local key = ARGV[1] .. ':req:' .. id
	redis.call('ZINCRBY', zkey, ARGV[6], id)
	redis.call('HINCRBY', key, 'position', ARGV[6])
	redis.call('HSET', key, 'updated', ARGV[7])
end
return #ids
`)

// ARGV: prefix, owner, updated, then id/position pairs
var setPositionsScript = redis.NewScript(`
for i = 4, #ARGV, 2 do
	local key = ARGV[1] .. ':req:' .. ARGV[i]
	if redis.call('HGET', key, 'owner') ~= ARGV[2] then
		return -1
	end
end
for i = 4, #ARGV, 2 do
	local key = ARGV[1] .. ':req:' .. ARGV[i]
	local status = redis.call('HGET', key, 'status')
	redis.call('ZADD', ARGV[1] .. ':q:' .. ARGV[2] .. ':' .. status, ARGV[i + 1], ARGV[i])
	redis.call('HSET', key, 'position', ARGV[i + 1], 'updated', ARGV[3])
end
return (#ARGV - 3) / 2
`)

// ARGV: prefix, owner, status or 'all'. Returns doc, status, position,
// updated for every record, flattened.
var listScript = redis.NewScript(`
local ids
if ARGV[3] == 'all' then
	ids = redis.call('SMEMBERS', ARGV[1] .. ':owner:' .. ARGV[2])
else
	ids = redis.call('ZRANGE', ARGV[1] .. ':q:' .. ARGV[2] .. ':' .. ARGV[3], 0, -1)
end
local out = {}
for _, id in ipairs(ids) do
	local v = redis.call('HMGET', ARGV[1] .. ':req:' .. id, 'doc', 'status', 'position', 'updated')
	if v[1] then
		out[#out + 1] = v[1]
		out[#out + 1] = v[2]
		out[#out + 1] = v[3]
		out[#out + 1] = v[4]
	end
end
return out
`)

// ARGV: prefix, username, lowercased email, artist JSON
var createArtistScript = redis.NewScript(`
if redis.call('EXISTS', ARGV[1] .. ':artist:' .. ARGV[2]) == 1 then
	return 1
end
if redis.call('EXISTS', ARGV[1] .. ':artist-email:' .. ARGV[3]) == 1 then
	return 2
end
redis.call('SET', ARGV[1] .. ':artist:' .. ARGV[2], ARGV[4])
redis.call('SET', ARGV[1] .. ':artist-email:' .. ARGV[3], ARGV[2])
return 0
`)
